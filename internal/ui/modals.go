package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/gapless/internal/audio"
	"github.com/glebovdev/gapless/internal/config"
	"github.com/glebovdev/gapless/internal/formats"
	"github.com/glebovdev/gapless/internal/service"
	"github.com/glebovdev/gapless/internal/track"
	"github.com/rivo/tview"
)

func friendlyErrorMessage(errStr string) string {
	switch {
	case strings.Contains(errStr, ErrNoTracks.Error()):
		return "No audio files found.\nPass files or directories on the command line."
	case strings.Contains(errStr, "no such file or directory"):
		return "File not found.\nIt may have been moved or deleted."
	case strings.Contains(errStr, "permission denied"):
		return "Permission denied.\nCheck the file's access rights."
	case strings.Contains(errStr, audio.ErrUnsupportedFormat.Error()):
		return "This file type is not supported."
	case strings.Contains(errStr, formats.ErrInvalidFile.Error()):
		return "The file is damaged or is not an audio file."
	case strings.Contains(errStr, formats.ErrUnsupported.Error()):
		return "The file uses an encoding the player cannot decode."
	case strings.Contains(errStr, service.ErrNothingPlayable.Error()):
		return "None of the remaining tracks could be played."
	case strings.Contains(errStr, "failed to start output"), strings.Contains(errStr, "failed to restart output"):
		return "The audio device is unavailable.\nTry another backend with --backend."
	}

	if len(errStr) > 100 {
		return errStr[:100] + "..."
	}
	return errStr
}

func (ui *UI) showError(err error) {
	ui.showPlaybackErrorModal(friendlyErrorMessage(err.Error()))
}

const (
	pageModal      = "modal"
	pageErrorModal = "error-modal"
)

// modal describes a centered dialog. Keys not handled by onKey close it.
type modal struct {
	page      string
	title     string
	body      string
	hint      string
	align     int
	border    tcell.Color
	width     int
	height    int
	bodyPad   int
	onKey     func(event *tcell.EventKey) bool
	onDismiss func()
}

func (ui *UI) showModal(m modal) {
	dismiss := func() {
		ui.pages.RemovePage(m.page)
		ui.app.SetFocus(ui.trackList)
		if m.onDismiss != nil {
			m.onDismiss()
		}
	}

	body := tview.NewTextView().
		SetTextAlign(m.align).
		SetDynamicColors(true).
		SetWordWrap(true).
		SetText("\n" + m.body)
	body.SetTextColor(ui.colors.foreground)
	body.SetBackgroundColor(ui.colors.modalBackground)

	hint := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]" + m.hint + "[::-]")
	hint.SetTextColor(tcell.ColorDarkGray)
	hint.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, false).
		AddItem(nil, m.bodyPad, 0, false).
		AddItem(hint, 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(content).SetBorders(1, 0, 1, 1, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(m.border).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" " + m.title + " ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)

	layout := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(frame, m.height, 0, true).
			AddItem(nil, 0, 1, false),
			m.width, 0, true).
		AddItem(nil, 0, 1, false)
	layout.SetBackgroundColor(ui.colors.background)

	layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if m.onKey != nil && m.onKey(event) {
			ui.pages.RemovePage(m.page)
			return nil
		}
		dismiss()
		return nil
	})

	ui.pages.AddPage(m.page, layout, true, true)
	ui.app.SetFocus(layout)
}

// modalHeight grows base by the body's extra lines, up to limit.
func modalHeight(body string, base, limit int) int {
	return min(base+strings.Count(body, "\n"), limit)
}

func (ui *UI) showPlaybackErrorModal(message string) {
	body := "[::b]Playback Error[::-]\n\n" + message
	ui.showModal(modal{
		page:   pageErrorModal,
		title:  "Error",
		body:   body,
		hint:   "Press [::b]R[::d] to retry  •  any other key to dismiss",
		align:  tview.AlignCenter,
		border: ui.colors.highlight,
		width:  50,
		height: modalHeight(body, 8, 15),
		onKey: func(event *tcell.EventKey) bool {
			if event.Key() != tcell.KeyRune || (event.Rune() != 'r' && event.Rune() != 'R') {
				return false
			}
			ui.app.SetFocus(ui.trackList)
			ui.playSelected()
			return true
		},
	})
}

func (ui *UI) showHelpModal() {
	keyColor := ui.colors.helpHotkey.String()

	configPath, _ := config.GetConfigPath()

	helpText := fmt.Sprintf(`[::b]KEYBOARD SHORTCUTS[::-]

[%[1]s]PLAYBACK[-]
  [%[1]s]Enter[-]      Play from selected track
  [%[1]s]Space[-]      Pause / Resume
  [%[1]s]n[-] / [%[1]s]>[-]      Next track
  [%[1]s]p[-] / [%[1]s]<[-]      Previous track
  [%[1]s]s[-]          Stop
  [%[1]s]←[-] / [%[1]s]→[-]      Seek -/+ %[2]d seconds

[%[1]s]VOLUME[-]
  [%[1]s]+[-] / [%[1]s]-[-]      Volume up / down
  [%[1]s]m[-]          Mute / Unmute

[%[1]s]TRACKS[-]
  [%[1]s]↑[-] / [%[1]s]↓[-]      Navigate list
  [%[1]s]i[-]          Track details

[%[1]s]APPLICATION[-]
  [%[1]s]?[-]          Show this help
  [%[1]s]a[-]          About %[3]s
  [%[1]s]q[-] / [%[1]s]Esc[-]    Quit

[%[1]s]CONFIG[-]: %[4]s`,
		keyColor, int(SeekStep.Seconds()), config.AppName, configPath)

	ui.showInfoModal("Help", helpText)
}

// playlistLength sums the probed durations and counts the tracks whose length
// is still unknown.
func playlistLength(tracks []track.Track) (total time.Duration, unknown int) {
	for _, t := range tracks {
		if t.Duration <= 0 {
			unknown++
			continue
		}
		total += t.Duration
	}
	return total, unknown
}

func (ui *UI) showAboutModal() {
	const dimColor = "gray"

	total, unknown := playlistLength(ui.playlist.Tracks())
	length := track.FormatDuration(total)
	if unknown > 0 {
		length += fmt.Sprintf(" (+%d unknown)", unknown)
	}

	aboutText := fmt.Sprintf(`[::b]%s[::-]
[%[2]s]%s[-]

Version: %s
Project: [skyblue:::%[5]s]%[5]s[-:::-]
License: MIT

───────────────────────────────────────────

[%[2]s]Formats:[-]  %[6]s
[%[2]s]Output:[-]   %[7]s, ring of %[8]d frames
[%[2]s]Playlist:[-] %[9]d tracks, %[10]s`,
		config.AppName,
		dimColor, config.AppTagline,
		config.AppVersion,
		config.AppProjectURL,
		strings.Join(formats.NewRegistry().Extensions(), " "),
		ui.config.Output.Backend, ui.player.RingBufferCapacity(),
		ui.playlist.TrackCount(), length)

	ui.showModal(modal{
		page:    pageModal,
		title:   "About",
		body:    aboutText,
		hint:    "Press any key to close",
		align:   tview.AlignLeft,
		border:  ui.colors.borders,
		width:   56,
		height:  21,
		bodyPad: 2,
	})
}

func (ui *UI) showTrackInfoModal() {
	row, _ := ui.trackList.GetSelection()
	t := ui.trackAt(row)
	if t == nil {
		return
	}

	info := fmt.Sprintf("[::b]%s[::-]\n\nAlbum:  %s\nType:   %s\nLength: %s\n\n%s",
		t.DisplayName(), t.Album, strings.ToUpper(t.Ext), trackLength(t), t.Path)

	if index := ui.playlist.FindIndexByPath(t.Path); index >= 0 && index == ui.playlist.PlayingIndex() {
		if f := ui.player.Format(); f.Valid() {
			info += fmt.Sprintf("\n\nNow playing at %s, %d dropouts", f, ui.player.Underruns())
		}
	}

	ui.showInfoModal("Track", info)
}

func (ui *UI) showInfoModal(title, message string) {
	ui.showModal(modal{
		page:    pageModal,
		title:   title,
		body:    message,
		hint:    "Press any key to close",
		align:   tview.AlignLeft,
		border:  ui.colors.borders,
		width:   60,
		height:  modalHeight(message, 11, 38),
		bodyPad: 2,
	})
}

func (ui *UI) showInitialErrorScreen(title, message string, onRetry, onQuit func()) {
	content := fmt.Sprintf("[::b]%s[::-]\n\n%s", title, message)

	textView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(content)
	textView.SetTextColor(ui.colors.foreground)
	textView.SetBackgroundColor(ui.colors.modalBackground)

	hint := "[::d]Press [::b]Q[::d] to quit[::-]"
	if onRetry != nil {
		hint = "[::d]Press [::b]R[::d] to retry  •  Press [::b]Q[::d] to quit[::-]"
	}
	helpText := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(hint)
	helpText.SetTextColor(ui.colors.foreground)
	helpText.SetBackgroundColor(ui.colors.background)

	frame := tview.NewFrame(textView).
		SetBorders(2, 2, 2, 2, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" Error ").
		SetTitleColor(ui.colors.highlight)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(frame, 60, 1, true).
			AddItem(nil, 0, 1, false), 10, 1, true).
		AddItem(helpText, 2, 0, false).
		AddItem(nil, 0, 1, false)
	layout.SetBackgroundColor(ui.colors.background)

	layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyRune:
			switch event.Rune() {
			case 'r', 'R':
				if onRetry != nil {
					onRetry()
				}
				return nil
			case 'q', 'Q':
				if onQuit != nil {
					onQuit()
				}
				return nil
			}
		case tcell.KeyEscape:
			if onQuit != nil {
				onQuit()
			}
			return nil
		}
		return event
	})

	ui.app.SetRoot(layout, true)
	ui.app.SetFocus(layout)
}

func (ui *UI) handleInitialError(err error) {
	var onRetry func()
	if !errors.Is(err, ErrNoTracks) {
		onRetry = func() {
			ui.app.SetRoot(ui.loadingScreen, true)
			go ui.initAsync()
		}
	}

	ui.showInitialErrorScreen(
		"Unable to Load Playlist",
		friendlyErrorMessage(err.Error()),
		onRetry,
		func() { // onQuit
			ui.app.Stop()
		},
	)
}
