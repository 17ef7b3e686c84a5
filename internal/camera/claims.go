package camera

import (
	"fmt"
	"sync"
)

// ClaimRegistry はデバイスを開いているセッションを記録する
//
// 1つのデバイスを同時に開けるのは1セッションだけ。
type ClaimRegistry struct {
	mu      sync.Mutex
	holders map[string]string
}

// DefaultClaims はプロセス全体で共有されるレジストリ
var DefaultClaims = NewClaimRegistry()

// NewClaimRegistry は新しいClaimRegistryを作成する
func NewClaimRegistry() *ClaimRegistry {
	return &ClaimRegistry{holders: make(map[string]string)}
}

// Claim はデバイスをownerのものとして確保する。同じownerなら何もしない
func (r *ClaimRegistry) Claim(key, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, exists := r.holders[key]; exists && holder != owner {
		return fmt.Errorf("%w: %s はセッション %s が使用中です", ErrDeviceUnavailable, key, holder)
	}
	r.holders[key] = owner
	return nil
}

// Release はownerが確保していればデバイスを解放する
func (r *ClaimRegistry) Release(key, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.holders[key] == owner {
		delete(r.holders, key)
	}
}

// Holder はデバイスを確保しているセッションを返す
func (r *ClaimRegistry) Holder(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	holder, exists := r.holders[key]
	return holder, exists
}
