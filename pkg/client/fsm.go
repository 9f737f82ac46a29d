package client

import "fmt"

// State шаг протокола.
type State int

const (
	StateReconnect State = iota + 1
	StateRegister
	StateSendKey
	StateSendFile
	StateSendCRC
	StateGood
	StateBad
)

var stateNames = map[State]string{
	StateReconnect: "RECONNECT",
	StateRegister:  "REGISTER",
	StateSendKey:   "SEND_KEY",
	StateSendFile:  "SEND_FILE",
	StateSendCRC:   "SEND_CRC",
	StateGood:      "GOOD",
	StateBad:       "BAD",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// Terminal сообщает, что запуск завершён.
func (s State) Terminal() bool {
	return s == StateGood || s == StateBad
}

// Event результат шага.
type Event int

const (
	EventOK Event = iota + 1
	EventReconnectRejected
	EventCRCMismatch
	EventCRCExhausted
	EventFatal
)

var eventNames = map[Event]string{
	EventOK:                "ok",
	EventReconnectRejected: "reconnect-rejected",
	EventCRCMismatch:       "crc-mismatch",
	EventCRCExhausted:      "crc-exhausted",
	EventFatal:             "fatal",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Action побочное действие перехода.
type Action int

const (
	ActionNone Action = iota
	// ActionResetRegistration сбрасывает флаг регистрации и соединение.
	ActionResetRegistration
	// ActionRetransmit готовит повторную отправку файла.
	ActionRetransmit
	// ActionFinish завершает запуск успехом.
	ActionFinish
	// ActionAbort завершает запуск отказом.
	ActionAbort
)

type transitionKey struct {
	state State
	event Event
}

// transitions заполняется один раз и не меняется.
// В StateReconnect не ведёт ни один переход: повторное подключение
// выполняется не более одного раза за запуск.
var transitions = map[transitionKey]struct {
	next   State
	action Action
}{
	{StateReconnect, EventOK}:                {StateSendFile, ActionNone},
	{StateReconnect, EventReconnectRejected}: {StateRegister, ActionResetRegistration},
	{StateRegister, EventOK}:                 {StateSendKey, ActionNone},
	{StateSendKey, EventOK}:                  {StateSendFile, ActionNone},
	{StateSendFile, EventOK}:                 {StateSendCRC, ActionNone},
	{StateSendCRC, EventOK}:                  {StateGood, ActionFinish},
	{StateSendCRC, EventCRCMismatch}:         {StateSendFile, ActionRetransmit},
	{StateSendCRC, EventCRCExhausted}:        {StateBad, ActionAbort},
}

// transition возвращает следующее состояние и действие.
// Любая пара вне таблицы, включая EventFatal, ведёт в StateBad.
func transition(s State, e Event) (State, Action) {
	if t, ok := transitions[transitionKey{s, e}]; ok {
		return t.next, t.action
	}
	return StateBad, ActionAbort
}

// entryState выбирает первый шаг запуска.
func entryState(p Profile) State {
	if p.Registered() && p.Keys() != nil {
		return StateReconnect
	}
	return StateRegister
}
