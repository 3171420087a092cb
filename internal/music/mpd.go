// Package music drives the MPD daemon for local playback. Connections
// are short-lived: each command dials, runs and closes, which sidesteps
// MPD's idle/command protocol conflicts and stale sockets.
package music

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fhs/gompd/v2/mpd"

	"github.com/CharlesBrocato/car-stereo-system/internal/config"
	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

// Status is the music state reported to the UI.
type Status struct {
	Available bool            `json:"available"`
	State     string          `json:"state"`
	Volume    int             `json:"volume"`
	Track     types.TrackInfo `json:"track"`
}

// Player is the MPD-backed music controller.
type Player struct {
	logger *logger.Logger
	addr   string
}

func NewPlayer(l *logger.Logger, cfg config.MusicConfig) *Player {
	return &Player{
		logger: l.WithTag("music"),
		addr:   cfg.MPDAddr,
	}
}

// do runs fn against a fresh MPD connection.
func (p *Player) do(fn func(c *mpd.Client) error) error {
	c, err := mpd.Dial("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("mpd dial %s: %w", p.addr, err)
	}
	defer c.Close()
	return fn(c)
}

func (p *Player) Play() error {
	return p.do(func(c *mpd.Client) error {
		return c.Play(-1)
	})
}

func (p *Player) Pause() error {
	return p.do(func(c *mpd.Client) error {
		return c.Pause(true)
	})
}

func (p *Player) Stop() error {
	return p.do(func(c *mpd.Client) error {
		return c.Stop()
	})
}

func (p *Player) Next() error {
	return p.do(func(c *mpd.Client) error {
		return c.Next()
	})
}

func (p *Player) Previous() error {
	return p.do(func(c *mpd.Client) error {
		return c.Previous()
	})
}

// SetVolume clamps to 0..100 before handing to MPD.
func (p *Player) SetVolume(volume int) error {
	if volume < 0 {
		volume = 0
	} else if volume > 100 {
		volume = 100
	}
	return p.do(func(c *mpd.Client) error {
		return c.SetVolume(volume)
	})
}

// Status returns the current playback state. MPD being down is not an
// error: the UI shows the music panel as unavailable.
func (p *Player) Status() Status {
	var st Status
	err := p.do(func(c *mpd.Client) error {
		status, err := c.Status()
		if err != nil {
			return err
		}
		st.State = status["state"]
		if v, err := strconv.Atoi(status["volume"]); err == nil {
			st.Volume = v
		}

		song, err := c.CurrentSong()
		if err != nil {
			return err
		}
		st.Track = trackFromSong(song, status)
		return nil
	})
	if err != nil {
		p.logger.Debugf("Status unavailable: %v", err)
		return Status{Available: false, State: "unavailable"}
	}
	st.Available = true
	return st
}

func trackFromSong(song mpd.Attrs, status mpd.Attrs) types.TrackInfo {
	info := types.TrackInfo{
		Title:  song["Title"],
		Artist: song["Artist"],
		Album:  song["Album"],
	}
	if info.Title == "" {
		// Stream or untagged file; fall back to the file name.
		info.Title = song["file"]
	}
	if v, err := strconv.ParseFloat(status["elapsed"], 64); err == nil {
		info.Elapsed = int(v)
	}
	if v, err := strconv.ParseFloat(status["duration"], 64); err == nil {
		info.Duration = int(v)
	}
	return info
}

// TrackLine is the one-line now-playing summary published over IPC.
func TrackLine(st Status) string {
	if !st.Available || st.Track.Title == "" {
		return ""
	}
	parts := []string{st.Track.Title}
	if st.Track.Artist != "" {
		parts = append([]string{st.Track.Artist}, parts...)
	}
	return strings.Join(parts, " - ")
}
