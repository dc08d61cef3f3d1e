package service

import (
	"github.com/stemsi/lessonflow/internal/engine"
	ws "github.com/stemsi/lessonflow/internal/websocket"
)

// UpdateMessages turns an engine.Update into the events sent to the client.
// Notifications, progress and XP are published by the outbox and are not
// repeated here.
func UpdateMessages(u engine.Update) []ws.Message {
	var msgs []ws.Message
	if u.Verdict != nil {
		msgs = append(msgs, ws.Message{Event: ws.EventVerdict, Data: u.Verdict})
	}
	if len(u.Unlocked) > 0 {
		msgs = append(msgs, ws.Message{Event: ws.EventSectionUnlocked, Data: ws.SectionUnlockedData{Sections: u.Unlocked}})
	}
	if len(u.Mounted) > 0 {
		msgs = append(msgs, ws.Message{Event: ws.EventMounted, Data: ws.MountedData{Blocks: u.Mounted}})
	}
	for _, ev := range u.Audio {
		msgs = append(msgs, ws.Message{Event: audioEvent(ev.Kind), Data: ev})
	}
	if u.Completed {
		msgs = append(msgs, ws.Message{Event: ws.EventCompleted, Data: u.Tail})
	}
	return msgs
}

func audioEvent(k engine.AudioEventKind) ws.Event {
	switch k {
	case engine.AudioHighlight:
		return ws.EventHighlight
	case engine.AudioScrollTo:
		return ws.EventScrollTo
	default:
		return ws.EventAudioState
	}
}
