// Package audit keeps a trail of who changed which rule, which direct
// commands were sent and how every scheduled action ended.
//
// Entries are written through a Writer, which queues them and stores them
// one at a time so request handlers and the scheduler never wait on SQLite.
// A full queue drops entries; the trail is best-effort.
package audit
