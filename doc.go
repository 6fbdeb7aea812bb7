// Package main runs promptgallery, a small web application that turns text
// prompts into images through a remote generation provider and shows them in
// a gallery.
//
// Features:
// - Registration, login and logout with server-side sessions
// - Prompt submission with public or private visibility
// - Gallery of public images plus the viewer's own private ones
// - Profiles with bio and picture
// - Popular images by view count
// - Rate limiting and Prometheus metrics
//
// Example usage:
//   go run . -config config/config.json
//   go run . migrate
//
// Configuration:
//   See config/config.json for server settings. Secrets such as OPENAI_API_KEY
//   and JWT_SECRET come from the environment or a .env file.
package main
