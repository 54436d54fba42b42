package engine

import (
	"github.com/Makepad-fr/tada/internal/appwrite"
	"github.com/Makepad-fr/tada/internal/model"
)

// Every result carries the epoch it was issued under so results that
// outlive a logout can be dropped.

type establishedMsg struct {
	epoch    uint64
	identity *model.Identity
}

type terminatedMsg struct {
	epoch uint64
	err   error
}

type subscribedMsg struct {
	epoch  uint64
	id     uint64
	stream EventStream
	err    error
}

type changeMsg struct {
	subID uint64
	event appwrite.Event
}

type streamClosedMsg struct {
	subID uint64
}

type reloadedMsg struct {
	epoch uint64
	todos []model.Todo
	err   error
}

type mutationMsg struct {
	epoch  uint64
	op     string
	todoID string
	err    error
}
