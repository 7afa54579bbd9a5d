// Package content defines stored content records and the caption grammar
// that turns a channel post caption into one.
//
// Caption grammar:
//
//	#12 - Title
//	Category: Action
//	Description: first line
//	more lines...
package content
