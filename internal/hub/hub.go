package hub

import (
	"log"
	"sync"

	"github.com/nao1215/feedhub/pkg/event"
)

// subscriptionBuffer は購読1本あたりの配送バッファ長。
// バッファが埋まった購読へのメッセージは破棄される（配送はベストエフォート）。
const subscriptionBuffer = 64

// Subscription はハブへの購読1本を表す。接続ごとに作られ、切断で破棄される。
// 再接続は新しい購読として扱われ、過去のメッセージは引き継がれない。
type Subscription struct {
	// ch はこの購読への配送チャネル。Unsubscribeでクローズされる。
	ch chan *event.Envelope
	// closeOnce はchの二重クローズを防ぐ。
	closeOnce sync.Once
}

// C は配送チャネルを返す。Unsubscribe後はクローズされる。
func (s *Subscription) C() <-chan *event.Envelope {
	return s.ch
}

// Hub はドメインイベントを全購読へファンアウトするプロセス内ハブ。
type Hub struct {
	// mu はsubsを保護する。Publishは読み取りロック、購読の増減は書き込みロック。
	mu sync.RWMutex
	// subs は現在の購読の集合。
	subs map[*Subscription]struct{}
}

// New は新しいハブを生成する。
func New() *Hub {
	return &Hub{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe は新しい購読を登録して返す。
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		ch: make(chan *event.Envelope, subscriptionBuffer),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Unsubscribe は購読を解除する。すべてのイベント種別から原子的に外れ、
// 解除後にこの購読へメッセージが配送されることはない。解除は不可逆であり、
// 同じ購読を再登録することはできない。
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	// 配送チャネルのクローズは書き込みロック内で行う。Publishは読み取りロック下で
	// 登録済みの購読にしか送信しないため、クローズ済みチャネルへの送信は起こらない。
	sub.closeOnce.Do(func() { close(sub.ch) })
}

// Publish はイベントを全購読へ配送する。呼び出し側から見て非ブロッキングであり、
// 受信の遅い購読があってもバッファあふれ分を破棄して即座に戻る。
// 個々の購読への配送失敗は他の購読にも発行元にも影響しない。
func (h *Hub) Publish(eventType event.Type, data any) {
	env, err := event.NewEnvelope(eventType, data)
	if err != nil {
		log.Printf("イベント %s のシリアライズに失敗: %v", eventType, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		select {
		case sub.ch <- env:
		default:
			// この購読のバッファが埋まっている。破棄して他の購読へ進む。
		}
	}
}

// SubscriberCount は現在の購読数を返す。
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
