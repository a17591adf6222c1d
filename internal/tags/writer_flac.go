package tags

import (
	"fmt"
	"strconv"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"
)

func writeFLAC(path string, meta Metadata, coverArt []byte) error {
	file, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("parse flac: %w", err)
	}

	comment := flacvorbis.New()
	addField := func(field, value string) error {
		if value == "" {
			return nil
		}
		return comment.Add(field, value)
	}

	fields := []struct {
		name  string
		value string
	}{
		{flacvorbis.FIELD_TITLE, meta.Title},
		{flacvorbis.FIELD_ARTIST, meta.Artist},
		{flacvorbis.FIELD_ALBUM, meta.Album},
		{flacvorbis.FIELD_GENRE, meta.Genre},
		{"ALBUMARTIST", meta.AlbumArtist},
	}
	if meta.Year > 0 {
		fields = append(fields, struct {
			name  string
			value string
		}{flacvorbis.FIELD_DATE, strconv.Itoa(meta.Year)})
	}
	if meta.TrackNumber > 0 {
		fields = append(fields, struct {
			name  string
			value string
		}{flacvorbis.FIELD_TRACKNUMBER, strconv.Itoa(meta.TrackNumber)})
	}
	if meta.TotalTracks > 0 {
		fields = append(fields, struct {
			name  string
			value string
		}{"TOTALTRACKS", strconv.Itoa(meta.TotalTracks)})
	}
	if meta.DiscNumber > 0 {
		fields = append(fields, struct {
			name  string
			value string
		}{"DISCNUMBER", strconv.Itoa(meta.DiscNumber)})
	}
	for _, field := range fields {
		if err := addField(field.name, field.value); err != nil {
			return fmt.Errorf("add vorbis field %s: %w", field.name, err)
		}
	}

	commentBlock := comment.Marshal()

	// Drop existing comment blocks (and picture blocks when replacing art) so
	// the rewrite is idempotent.
	filtered := file.Meta[:0]
	for _, block := range file.Meta {
		if block.Type == flac.VorbisComment {
			continue
		}
		if len(coverArt) > 0 && block.Type == flac.Picture {
			continue
		}
		filtered = append(filtered, block)
	}
	file.Meta = append(filtered, &commentBlock)

	if len(coverArt) > 0 {
		picture, err := flacpicture.NewFromImageData(
			flacpicture.PictureTypeFrontCover,
			"Front cover",
			coverArt,
			detectImageMIME(coverArt),
		)
		if err != nil {
			return fmt.Errorf("build flac picture: %w", err)
		}
		pictureBlock := picture.Marshal()
		file.Meta = append(file.Meta, &pictureBlock)
	}

	if err := file.Save(path); err != nil {
		return fmt.Errorf("save flac: %w", err)
	}
	return nil
}
