// Package tagging writes ID3v2 metadata into downloaded track files.
package tagging

import (
	"fmt"
	"strconv"

	"github.com/bogem/id3v2/v2"
)

// TrackTag is the metadata written into a track file.
type TrackTag struct {
	Title  string
	Album  string
	Artist string
	Number int
	Total  int
	// Comment carries the provider track id so files can be traced back.
	Comment string
}

// ID3Tagger writes ID3v2.4 frames in UTF-8.
type ID3Tagger struct{}

func NewID3Tagger() *ID3Tagger {
	return &ID3Tagger{}
}

// Tag opens the file at path, replaces the frames it manages and saves it.
func (t *ID3Tagger) Tag(path string, tag TrackTag) error {
	f, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open %s for tagging: %w", path, err)
	}
	defer f.Close()

	f.SetVersion(4)
	f.SetDefaultEncoding(id3v2.EncodingUTF8)

	if tag.Title != "" {
		f.SetTitle(tag.Title)
	}

	if tag.Album != "" {
		f.SetAlbum(tag.Album)
	}

	if tag.Artist != "" {
		f.SetArtist(tag.Artist)
	}

	if tag.Number > 0 {
		f.AddTextFrame(f.CommonID("Track number/Position in set"), id3v2.EncodingUTF8, trackNumber(tag.Number, tag.Total))
	}

	if tag.Comment != "" {
		f.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    id3v2.EncodingUTF8,
			Language:    "eng",
			Description: "source",
			Text:        tag.Comment,
		})
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to save tags to %s: %w", path, err)
	}

	return nil
}

func trackNumber(n, total int) string {
	if total > 0 {
		return strconv.Itoa(n) + "/" + strconv.Itoa(total)
	}

	return strconv.Itoa(n)
}
