package catalog

import (
	"fmt"
	"strings"

	"hfbot/3rdparty/phishnet"
)

const (
	bustOutGap = 100
	rareTimes  = 10
)

func describeSong(song *phishnet.Song, performances []phishnet.Performance, artist string) string {
	var b strings.Builder
	b.WriteString("This is " + song.Song)
	if song.Artist != "" && song.Artist != artist {
		b.WriteString(" by " + song.Artist)
	}

	// The gap in the catalog does not include the current show.
	gap := int(song.Gap) + 1
	if len(performances) >= 2 {
		fmt.Fprintf(&b, ", last played %s (%d shows ago).", song.LastPlayed, gap)
	} else {
		b.WriteString(".")
	}

	if gap > bustOutGap {
		b.WriteString(" A bust-out!")
	}

	times := int(song.TimesPlayed)
	unit := "times"
	if times == 1 {
		unit = "time"
	}

	fmt.Fprintf(&b, " %s have played this song %d %s since %s.", artistName(artist), times, unit, song.Debut)
	if times < rareTimes {
		b.WriteString(" A rare one!")
	}

	return b.String()
}

func artistName(artist string) string {
	if artist == "" {
		return "They"
	}

	return artist
}

// seenAt returns the attended shows where the song was played, excluding today's show.
func seenAt(performances []phishnet.Performance, attendance []phishnet.Attendance, today string) []phishnet.Attendance {
	played := make(map[phishnet.Int]bool, len(performances))
	for _, performance := range performances {
		played[performance.ShowID] = true
	}

	seen := make([]phishnet.Attendance, 0)
	for _, show := range attendance {
		if played[show.ShowID] {
			seen = append(seen, show)
		}
	}

	// The catalog sometimes lists the running show already.
	if n := len(seen); n > 0 && seen[n-1].ShowDate == today {
		seen = seen[:n-1]
	}

	return seen
}

func describeHistory(seen []phishnet.Attendance) string {
	if len(seen) == 0 {
		return "You have not seen this song before!"
	}

	last := seen[len(seen)-1]
	where := fmt.Sprintf("on %s at %s in %s.", last.ShowDate, last.Venue, last.City)
	if len(seen) == 1 {
		return "You have seen this song once before, " + where
	}

	return fmt.Sprintf("You have seen this song %d times before, most recently %s", len(seen), where)
}
