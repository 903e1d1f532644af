package event

import (
	"encoding/json"
	"testing"
)

// TestEnvelopeWireFormat はブロードキャストメッセージのワイヤ形式を検証する。
// クライアントは {"event": ..., "data": ...} の形を前提に振り分けを行う。
func TestEnvelopeWireFormat(t *testing.T) {
	t.Parallel()

	env, err := NewEnvelope(TypeNewNotification, NewNotificationData{
		UserID:           "user-1",
		NotificationType: "like",
	})
	if err != nil {
		t.Fatalf("メッセージの生成に失敗: %v", err)
	}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("メッセージのシリアライズに失敗: %v", err)
	}

	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("ワイヤ形式のデコードに失敗: %v", err)
	}
	if string(wire["event"]) != `"newNotification"` {
		t.Errorf("イベント名が一致しません: got=%s", wire["event"])
	}

	var data map[string]string
	if err := json.Unmarshal(wire["data"], &data); err != nil {
		t.Fatalf("データのデコードに失敗: %v", err)
	}
	if data["userId"] != "user-1" || data["type"] != "like" {
		t.Errorf("データが一致しません: %+v", data)
	}
}

// TestDecodeData はデータの型付きデコードを検証する。
func TestDecodeData(t *testing.T) {
	t.Parallel()

	env, err := NewEnvelope(TypePostLiked, PostLikedData{
		PostID:         "post-1",
		Likes:          []string{"user-1", "user-2"},
		LikesUsernames: []string{"alice", "bob"},
		LikesCount:     2,
		IsLiked:        true,
	})
	if err != nil {
		t.Fatalf("メッセージの生成に失敗: %v", err)
	}

	data, err := DecodeData[PostLikedData](env)
	if err != nil {
		t.Fatalf("データのデコードに失敗: %v", err)
	}
	if data.PostID != "post-1" || data.LikesCount != 2 || !data.IsLiked {
		t.Errorf("デコード結果が一致しません: %+v", data)
	}
	if len(data.Likes) != len(data.LikesUsernames) {
		t.Errorf("いいね列の長さが対応していません: %+v", data)
	}
	for i, id := range data.Likes {
		want := map[string]string{"user-1": "alice", "user-2": "bob"}[id]
		if data.LikesUsernames[i] != want {
			t.Errorf("いいね列の位置%dが対応していません: id=%s, username=%s", i, id, data.LikesUsernames[i])
		}
	}
}
