// Command fusion runs the web backend and its administration commands.
package main

import "github.com/mesh-intelligence/fusion/internal/cli"

func main() {
	cli.Execute()
}
