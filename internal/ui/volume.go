package ui

import (
	"fmt"
	"strings"

	"github.com/glebovdev/gapless/internal/config"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	volumeBarHeight = 10
	volumeBarWidth  = 7
)

// volume is the listener's level in percent. Muting keeps the level so that
// unmuting restores it.
type volume struct {
	level int
	muted bool
}

func (v volume) effective() int {
	if v.muted {
		return 0
	}
	return v.level
}

// step moves the level by delta. A muted volume is unmuted instead, and step
// reports true.
func (v *volume) step(delta int) bool {
	if v.muted {
		v.muted = false
		return true
	}
	v.level = config.ClampVolume(v.level + delta)
	return false
}

func (v *volume) toggleMute() {
	if !v.muted && v.level == 0 {
		v.level = config.DefaultVolume
	}
	v.muted = !v.muted
}

// renderVolumeBar draws a vertical meter of height cells between "max" and
// "min", labelling the top filled cell with the level.
func renderVolumeBar(v volume, height int, fillColor, mutedColor string) string {
	filled := min(max(v.level, 0), 100) * height / 100

	color := fillColor
	if v.muted {
		color = mutedColor
	}

	var b strings.Builder
	b.WriteString("max\n")
	for i := 0; i < height; i++ {
		if i < height-filled {
			b.WriteString("░░\n")
			continue
		}

		label := ""
		if i == height-filled {
			label = fmt.Sprintf("%d%%", v.level)
			if v.muted {
				label = "[::s]" + label + "[::-]"
			}
			label += " "
		}
		fmt.Fprintf(&b, "[%s]%s██[-]\n", color, label)
	}
	b.WriteString("min")
	return b.String()
}

func (ui *UI) createVolumeView() *tview.TextView {
	view := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignRight)
	view.SetBackgroundColor(ui.colors.background)
	view.SetTextColor(ui.colors.foreground)
	return view
}

func (ui *UI) updateVolumeDisplay() {
	if ui.volumeView == nil {
		return
	}

	ui.mu.Lock()
	v := ui.volume
	ui.mu.Unlock()

	ui.volumeView.SetText(renderVolumeBar(v, volumeBarHeight,
		ui.colors.highlight.String(), ui.config.Theme.MutedVolume))
}

// applyVolume maps a 0-100 percentage onto the output's linear volume.
func (ui *UI) applyVolume(percent int) {
	if err := ui.player.SetVolume(float64(percent) / 100); err != nil {
		log.Debug().Err(err).Int("volume", percent).Msg("Volume not applied")
	}
}

func (ui *UI) adjustVolume(delta int) {
	ui.mu.Lock()
	unmuted := ui.volume.step(delta)
	v := ui.volume
	ui.mu.Unlock()

	ui.statusRenderer.SetMuted(false)
	ui.applyVolume(v.effective())
	ui.updateVolumeDisplay()

	if unmuted {
		log.Debug().Msgf("Auto-unmuted, restored volume to %d%%", v.level)
		return
	}
	ui.SaveConfig()
	log.Debug().Msgf("Volume adjusted to %d%%", v.level)
}

func (ui *UI) toggleMute() {
	ui.mu.Lock()
	ui.volume.toggleMute()
	v := ui.volume
	ui.mu.Unlock()

	ui.statusRenderer.SetMuted(v.muted)
	ui.applyVolume(v.effective())
	ui.updateVolumeDisplay()
	ui.SaveConfig()
	log.Debug().Bool("muted", v.muted).Int("level", v.level).Msg("Mute toggled")
}

func (ui *UI) isMuted() bool {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	return ui.volume.muted
}
