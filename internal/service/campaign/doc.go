// Package campaign implements campaign lifecycle management.
//
// A campaign is composed once and sent once: Send resolves the audience,
// records one recipient row per contact, and enqueues one send job each.
// Engagement counters are fed afterwards by tracking events and are
// first-touch per recipient.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
