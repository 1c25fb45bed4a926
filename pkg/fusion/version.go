// Package fusion carries build metadata shared by the binary and libraries.
package fusion

// Version is the release version of the fusion module.
const Version = "1.0.0"
