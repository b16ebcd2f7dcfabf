package state

import (
	"sync"
	"time"
)

// UserState текущий шаг диалога в чате
type UserState string

const (
	StateNone UserState = "" // Нет активного диалога

	// Ожидаем текст сообщения для пользователя Dialog.RecipientID
	StateComposingMessage UserState = "composing_message"

	// Ожидаем причину переноса занятия Dialog.SessionID
	StateRescheduleReason UserState = "reschedule_reason"
)

// DefaultTTL после этого срока незавершённый диалог забывается
const DefaultTTL = 10 * time.Minute

// Dialog данные незавершённого диалога
type Dialog struct {
	State       UserState
	UserID      int64
	RecipientID int64
	SessionID   int64
	startedAt   time.Time
}

// Manager управляет диалогами по chatID
type Manager struct {
	mu      sync.Mutex
	dialogs map[int64]Dialog
	ttl     time.Duration
	now     func() time.Time
}

func NewManager(ttl time.Duration, now func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		dialogs: make(map[int64]Dialog),
		ttl:     ttl,
		now:     now,
	}
}

// Start начинает диалог, заменяя предыдущий
func (m *Manager) Start(chatID int64, d Dialog) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.State == StateNone {
		delete(m.dialogs, chatID)
		return
	}
	d.startedAt = m.now()
	m.dialogs[chatID] = d
}

// Get активный диалог; просроченный удаляется
func (m *Manager) Get(chatID int64) (Dialog, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.dialogs[chatID]
	if !ok {
		return Dialog{}, false
	}
	if m.now().Sub(d.startedAt) > m.ttl {
		delete(m.dialogs, chatID)
		return Dialog{}, false
	}
	return d, true
}

// Clear завершает диалог; возвращает был ли он
func (m *Manager) Clear(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.dialogs[chatID]
	delete(m.dialogs, chatID)
	return ok
}
