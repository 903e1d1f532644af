package event

import (
	"encoding/json"
	"fmt"
)

// Envelope はブロードキャストメッセージのワイヤ形式。
// イベント名とJSONシリアライズ済みのデータを持つ。
type Envelope struct {
	// Event はイベントの種類。
	Event Type `json:"event"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
}

// NewEnvelope は新しいブロードキャストメッセージを生成する。
// dataにはイベント固有のデータ構造体を渡す。JSON形式にシリアライズされる。
func NewEnvelope(eventType Type, data any) (*Envelope, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}

	return &Envelope{
		Event: eventType,
		Data:  jsonData,
	}, nil
}

// DecodeData はメッセージのDataフィールドを指定された型にデシリアライズする。
func DecodeData[T any](e *Envelope) (*T, error) {
	var data T
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}
