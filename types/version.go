package types

// Version is the mill release version.
const Version = "0.1.0"
