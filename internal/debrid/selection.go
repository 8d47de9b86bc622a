package debrid

import (
	"path"
	"strings"

	"github.com/amaumene/rdstream/internal/constants"
	"github.com/amaumene/rdstream/pkg/realdebrid"
)

// ChooseFiles picks which files of a torrent to activate: the largest video
// file, else the largest file that is not an archive. A nil result means
// select everything.
func ChooseFiles(files []realdebrid.File) []int {
	var bestVideo, bestOther *realdebrid.File
	for i := range files {
		f := &files[i]
		ext := strings.ToLower(path.Ext(f.Path))
		switch {
		case constants.VideoExtensions[ext]:
			if bestVideo == nil || f.Bytes > bestVideo.Bytes {
				bestVideo = f
			}
		case !constants.ArchiveExtensions[ext]:
			if bestOther == nil || f.Bytes > bestOther.Bytes {
				bestOther = f
			}
		}
	}

	if bestVideo != nil {
		return []int{bestVideo.ID}
	}
	if bestOther != nil {
		return []int{bestOther.ID}
	}
	return nil
}
