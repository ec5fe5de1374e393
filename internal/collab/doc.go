// Package collab implements the collaborators consulted while rendering:
// HTTP fetches, the server day count, the online player list and installed
// versions.
package collab
