package client

import (
	"strconv"
	"strings"

	"github.com/luma/anidb/protocol"
)

const (
	// FileMask selects size, ed2k and file extension.
	FileMask = "00c0010000"

	// AnimeMask selects episode totals, the english series name, the
	// episode number and name, and the group short name.
	AnimeMask = "c020c040"
)

// FileKeys is the order of the payload fields of a FILE reply requested with
// FileMask and AnimeMask. The file id always comes first.
var FileKeys = []string{
	"fid",
	"size",
	"ed2k",
	"fext",
	"eid_total",
	"eid_highest",
	"series",
	"eid",
	"title",
	"group",
}

// File is what the catalog knows about a file.
type File struct {
	FID            int    `json:"fid"`
	Size           int64  `json:"size"`
	ED2K           string `json:"ed2k"`
	Ext            string `json:"fext"`
	EpisodeTotal   int    `json:"eid_total"`
	EpisodeHighest int    `json:"eid_highest"`
	Series         string `json:"series"`
	Episode        string `json:"eid"`
	Title          string `json:"title"`
	Group          string `json:"group"`
}

func decodeFile(reply protocol.Reply) *File {
	fields := protocol.DecodeFields(reply.Text, 1, FileKeys, protocol.DefaultFieldDelimiter)

	f := &File{
		ED2K:    strings.ToLower(fields["ed2k"]),
		Ext:     fields["fext"],
		Series:  fields["series"],
		Episode: fields["eid"],
		Title:   fields["title"],
		Group:   fields["group"],
	}

	f.FID, _ = strconv.Atoi(fields["fid"])
	f.Size, _ = strconv.ParseInt(fields["size"], 10, 64)
	f.EpisodeTotal, _ = strconv.Atoi(fields["eid_total"])
	f.EpisodeHighest, _ = strconv.Atoi(fields["eid_highest"])

	return f
}

// Fields flattens the file into the keys of FileKeys. Numeric fields are
// integers; the episode number stays a string when it is not numeric, as
// for specials ("S1") or credits ("C2").
func (f *File) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"fid":         f.FID,
		"size":        f.Size,
		"ed2k":        f.ED2K,
		"fext":        f.Ext,
		"eid_total":   f.EpisodeTotal,
		"eid_highest": f.EpisodeHighest,
		"series":      f.Series,
		"eid":         f.Episode,
		"title":       f.Title,
		"group":       f.Group,
	}

	if n, err := strconv.Atoi(f.Episode); err == nil {
		fields["eid"] = n
	}

	return fields
}
