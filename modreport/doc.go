// Core data model for the moderation report engine.
//
// This package defines reports, the evidence atoms they accumulate, the
// reason/room taxonomy used for queueing, and the role view types (suspect,
// reporter, moderator) derived from a user identity. The intake pipeline,
// the inquiry claim protocol, and the aggregate caches built on top of this
// model live in modreport/engine; automated report producers live in
// modreport/detectors.
package modreport
