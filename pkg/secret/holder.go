package secret

import "sync/atomic"

// Holder хранит текущий ключ сессии.
// Отправка, приёмные горутины и наблюдатель за файлом ключа работают
// с одним Holder; каждый читатель получает целый снимок ключа.
type Holder struct {
	key atomic.Pointer[Key]
}

// NewHolder создаёт Holder, опционально с начальным ключом.
func NewHolder(initial *Key) *Holder {
	h := &Holder{}
	if initial != nil {
		k := *initial
		h.key.Store(&k)
	}
	return h
}

// Get возвращает снимок ключа. ok == false, если ключ не задан.
func (h *Holder) Get() (Key, bool) {
	p := h.key.Load()
	if p == nil {
		return Key{}, false
	}
	return *p, true
}

// Set заменяет ключ целиком.
func (h *Holder) Set(k Key) {
	h.key.Store(&k)
}

// SetBase64 проверяет ключ и только затем заменяет текущий.
// При ошибке прежний ключ остаётся.
func (h *Holder) SetBase64(s string) error {
	k, err := ParseKey(s)
	if err != nil {
		return err
	}
	h.Set(k)
	return nil
}

// Clear удаляет ключ.
func (h *Holder) Clear() {
	h.key.Store(nil)
}

// Encrypt шифрует текущим ключом.
func (h *Holder) Encrypt(plaintext string) (string, error) {
	k, ok := h.Get()
	if !ok {
		return "", ErrNoKey
	}
	return Encrypt(plaintext, k[:])
}

// Decrypt расшифровывает текущим ключом.
func (h *Holder) Decrypt(blob string) (string, error) {
	k, ok := h.Get()
	if !ok {
		return "", ErrNoKey
	}
	return Decrypt(blob, k[:])
}
