package msgs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/fable.go/pkg/module"
)

func TestTypedRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		msg   SerializableMessage
		kind  func(Typed) bool
		reply bool
	}{
		{
			name: "set position",
			msg:  &SetPosition{PbSetPosition: PbSetPosition{Serial: "SJ01", Axis: "x", Value: -12.5}},
			kind: Typed.IsCommand,
		},
		{
			name:  "field value",
			msg:   NewFieldValue("SJ01", "battery", module.Value{Int: 87}),
			kind:  Typed.IsCommand,
			reply: true,
		},
		{
			name:  "command error",
			msg:   NewCommandErr(errors.New("boom")),
			kind:  Typed.IsCommand,
			reply: true,
		},
		{
			name: "module status",
			msg: &ModuleStatus{PbModuleStatus: PbModuleStatus{
				Serial:  "SJ01",
				Type:    "joint",
				RadioId: 3,
				Quality: 0.5,
				Cycles:  42,
			}},
			kind: Typed.IsEvent,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			typed, err := TypedFrom(tc.msg)
			require.NoError(t, err)
			typed.Sequence = 7
			data, err := typed.Encode()
			require.NoError(t, err)

			decoded, err := DecodeTyped(data)
			require.NoError(t, err)
			assert.Equal(t, tc.msg.TypeID(), decoded.TypeId)
			assert.Equal(t, uint32(7), decoded.Sequence)
			assert.True(t, tc.kind(*decoded))
			assert.Equal(t, tc.reply, decoded.IsReply())

			msg, err := decoded.Decode()
			require.NoError(t, err)
			assert.Equal(t, tc.msg, msg)
		})
	}
}

func TestDecodeUnknownType(t *testing.T) {
	typed := Typed{PbTyped: PbTyped{TypeId: GroupModule | 0x0fff}}
	_, err := typed.Decode()
	var unknown *ErrUnknownType
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, GroupModule|0x0fff, unknown.TypeID)
}

type plainMessage struct{}

func (m *plainMessage) NewMessage() Message { return &plainMessage{} }

func TestTypedFromNotSerializable(t *testing.T) {
	_, err := TypedFrom(&plainMessage{})
	assert.Equal(t, ErrNotSerializable, err)
}

func TestFieldValue(t *testing.T) {
	v := module.Value{Int: 0x1234, Bytes: []byte("SJ01")}
	msg := NewFieldValue("SJ01", "serial", v)
	assert.Equal(t, v, msg.Value())
	assert.Equal(t, "boom", NewCommandErr(errors.New("boom")).Error())
}
