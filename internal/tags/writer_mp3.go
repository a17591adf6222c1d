package tags

import (
	"fmt"
	"strconv"

	"github.com/bogem/id3v2/v2"
)

func writeMP3(path string, meta Metadata, coverArt []byte) error {
	tagFile, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3 tag: %w", err)
	}
	defer tagFile.Close()

	tagFile.SetDefaultEncoding(id3v2.EncodingUTF8)
	tagFile.SetTitle(meta.Title)
	tagFile.SetArtist(meta.Artist)
	tagFile.SetAlbum(meta.Album)
	if meta.Genre != "" {
		tagFile.SetGenre(meta.Genre)
	}
	if meta.Year > 0 {
		tagFile.SetYear(strconv.Itoa(meta.Year))
	}
	if meta.AlbumArtist != "" {
		tagFile.AddTextFrame("TPE2", tagFile.DefaultEncoding(), meta.AlbumArtist)
	}
	if value := positionValue(meta.TrackNumber, meta.TotalTracks); value != "" {
		tagFile.AddTextFrame("TRCK", tagFile.DefaultEncoding(), value)
	}
	if value := positionValue(meta.DiscNumber, meta.TotalDiscs); value != "" {
		tagFile.AddTextFrame("TPOS", tagFile.DefaultEncoding(), value)
	}

	if len(coverArt) > 0 {
		tagFile.DeleteFrames(tagFile.CommonID("Attached picture"))
		tagFile.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    detectImageMIME(coverArt),
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     coverArt,
		})
	}

	if err := tagFile.Save(); err != nil {
		return fmt.Errorf("save id3 tag: %w", err)
	}
	return nil
}

func positionValue(number, total int) string {
	if number <= 0 {
		return ""
	}
	if total > 0 {
		return fmt.Sprintf("%d/%d", number, total)
	}
	return strconv.Itoa(number)
}

func detectImageMIME(data []byte) string {
	if len(data) >= 8 && data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G' {
		return "image/png"
	}
	return "image/jpeg"
}
