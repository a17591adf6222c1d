// Package tags reads and writes embedded audio metadata. Reading covers
// every supported container through dhowden/tag; writing is implemented for
// MP3 (ID3v2.4) and FLAC (Vorbis comments), the formats the organizer
// mutates in place.
package tags
