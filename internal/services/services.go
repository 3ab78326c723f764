// Package services implements the external collaborators of the chat client: model backends, the
// persistent store and the code execution sandbox together with its HTTP client.
package services

const errLoggerKey = "error"
