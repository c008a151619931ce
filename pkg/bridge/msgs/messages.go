// Package msgs defines the messages a host exchanges with remote
// applications: commands addressing attached modules, their replies,
// and module status events.
package msgs

import (
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/fable.go/pkg/module"
)

// TypeID Groups
const (
	GroupCommand uint32 = 0x00000000
	GroupModule  uint32 = 0x00010000
)

// TypeIDs
const (
	CommandOKTypeID    uint32 = GroupCommand | TypeIDMaskReply | 0x0000
	CommandErrTypeID   uint32 = GroupCommand | TypeIDMaskReply | 0x0001
	SetPositionTypeID  uint32 = GroupModule | 0x0001
	SetSpeedTypeID     uint32 = GroupModule | 0x0002
	SetTorqueTypeID    uint32 = GroupModule | 0x0003
	ReadFieldTypeID    uint32 = GroupModule | 0x0004
	FieldValueTypeID   uint32 = ReadFieldTypeID | TypeIDMaskReply
	ListModulesTypeID  uint32 = GroupModule | 0x0005
	ModuleListTypeID   uint32 = ListModulesTypeID | TypeIDMaskReply
	TerminateTypeID    uint32 = GroupModule | 0x0006
	ModuleStatusTypeID uint32 = TypeIDKindEvent | GroupModule | 0x0001
)

// MessageTypes are predefined mapping of type ID to messages.
var MessageTypes = map[uint32]SerializableMessage{
	CommandOKTypeID:    (*CommandOK)(nil),
	CommandErrTypeID:   (*CommandErr)(nil),
	SetPositionTypeID:  (*SetPosition)(nil),
	SetSpeedTypeID:     (*SetSpeed)(nil),
	SetTorqueTypeID:    (*SetTorque)(nil),
	ReadFieldTypeID:    (*ReadField)(nil),
	FieldValueTypeID:   (*FieldValue)(nil),
	ListModulesTypeID:  (*ListModules)(nil),
	ModuleListTypeID:   (*ModuleList)(nil),
	TerminateTypeID:    (*Terminate)(nil),
	ModuleStatusTypeID: (*ModuleStatus)(nil),
}

// CommandOK is the generic reply indicating success for commands.
type CommandOK struct {
	PbCommandOK
}

// NewCommandOK creates a CommandOK.
func NewCommandOK() *CommandOK {
	return &CommandOK{}
}

// NewMessage implements Message.
func (m *CommandOK) NewMessage() Message { return &CommandOK{} }

// TypeID implements SerializableMessage.
func (m *CommandOK) TypeID() uint32 { return CommandOKTypeID }

// Serializable implements SerializableMessage.
func (m *CommandOK) Serializable() proto.Message { return &m.PbCommandOK }

// CommandErr is the generic message representing command error.
type CommandErr struct {
	PbCommandErr
}

// NewCommandErr creates a CommandErr from an error.
func NewCommandErr(err error) *CommandErr {
	return &CommandErr{PbCommandErr: PbCommandErr{Message: err.Error()}}
}

// NewMessage implements Message.
func (m *CommandErr) NewMessage() Message { return &CommandErr{} }

// TypeID implements SerializableMessage.
func (m *CommandErr) TypeID() uint32 { return CommandErrTypeID }

// Serializable implements SerializableMessage.
func (m *CommandErr) Serializable() proto.Message { return &m.PbCommandErr }

// Error implements error.
func (m *CommandErr) Error() string { return m.Message }

// SetPosition command. Value is in degrees for joints and encoder
// ticks for spins.
type SetPosition struct {
	PbSetPosition
}

// NewMessage implements Message.
func (m *SetPosition) NewMessage() Message { return &SetPosition{} }

// TypeID implements SerializableMessage.
func (m *SetPosition) TypeID() uint32 { return SetPositionTypeID }

// Serializable implements SerializableMessage.
func (m *SetPosition) Serializable() proto.Message { return &m.PbSetPosition }

// SetSpeed command.
type SetSpeed struct {
	PbSetSpeed
}

// NewMessage implements Message.
func (m *SetSpeed) NewMessage() Message { return &SetSpeed{} }

// TypeID implements SerializableMessage.
func (m *SetSpeed) TypeID() uint32 { return SetSpeedTypeID }

// Serializable implements SerializableMessage.
func (m *SetSpeed) Serializable() proto.Message { return &m.PbSetSpeed }

// SetTorque command.
type SetTorque struct {
	PbSetTorque
}

// NewMessage implements Message.
func (m *SetTorque) NewMessage() Message { return &SetTorque{} }

// TypeID implements SerializableMessage.
func (m *SetTorque) TypeID() uint32 { return SetTorqueTypeID }

// Serializable implements SerializableMessage.
func (m *SetTorque) Serializable() proto.Message { return &m.PbSetTorque }

// ReadField command.
type ReadField struct {
	PbReadField
}

// NewMessage implements Message.
func (m *ReadField) NewMessage() Message { return &ReadField{} }

// TypeID implements SerializableMessage.
func (m *ReadField) TypeID() uint32 { return ReadFieldTypeID }

// Serializable implements SerializableMessage.
func (m *ReadField) Serializable() proto.Message { return &m.PbReadField }

// FieldValue replies ReadField.
type FieldValue struct {
	PbFieldValue
}

// NewFieldValue creates a FieldValue.
func NewFieldValue(serial, field string, v module.Value) *FieldValue {
	return &FieldValue{PbFieldValue: PbFieldValue{
		Serial: serial,
		Field:  field,
		Int:    int64(v.Int),
		Bytes:  v.Bytes,
	}}
}

// Value converts the reply to a module value.
func (m *FieldValue) Value() module.Value {
	return module.Value{Int: int(m.Int), Bytes: m.Bytes}
}

// NewMessage implements Message.
func (m *FieldValue) NewMessage() Message { return &FieldValue{} }

// TypeID implements SerializableMessage.
func (m *FieldValue) TypeID() uint32 { return FieldValueTypeID }

// Serializable implements SerializableMessage.
func (m *FieldValue) Serializable() proto.Message { return &m.PbFieldValue }

// ListModules command.
type ListModules struct {
	PbListModules
}

// NewMessage implements Message.
func (m *ListModules) NewMessage() Message { return &ListModules{} }

// TypeID implements SerializableMessage.
func (m *ListModules) TypeID() uint32 { return ListModulesTypeID }

// Serializable implements SerializableMessage.
func (m *ListModules) Serializable() proto.Message { return &m.PbListModules }

// ModuleList replies ListModules.
type ModuleList struct {
	PbModuleList
}

// NewMessage implements Message.
func (m *ModuleList) NewMessage() Message { return &ModuleList{} }

// TypeID implements SerializableMessage.
func (m *ModuleList) TypeID() uint32 { return ModuleListTypeID }

// Serializable implements SerializableMessage.
func (m *ModuleList) Serializable() proto.Message { return &m.PbModuleList }

// Terminate command.
type Terminate struct {
	PbTerminate
}

// NewMessage implements Message.
func (m *Terminate) NewMessage() Message { return &Terminate{} }

// TypeID implements SerializableMessage.
func (m *Terminate) TypeID() uint32 { return TerminateTypeID }

// Serializable implements SerializableMessage.
func (m *Terminate) Serializable() proto.Message { return &m.PbTerminate }

// ModuleStatus event.
type ModuleStatus struct {
	PbModuleStatus
}

// StatusOf summarizes a module.
func StatusOf(m *module.Module) *PbModuleStatus {
	st := m.Stats()
	s := &PbModuleStatus{
		Serial:     m.SerialID(),
		Type:       m.Type().String(),
		RadioId:    int32(st.RadioID),
		Status:     int32(st.Status),
		Quality:    st.Quality,
		Cycles:     st.Cycles,
		ErrorCount: int32(st.ErrorCount),
		Locked:     m.IsOwnedByAnotherDongle(),
	}
	if !st.LastSync.IsZero() {
		s.LastSyncMs = st.LastSync.UnixNano() / int64(time.Millisecond)
	}
	return s
}

// NewMessage implements Message.
func (m *ModuleStatus) NewMessage() Message { return &ModuleStatus{} }

// TypeID implements SerializableMessage.
func (m *ModuleStatus) TypeID() uint32 { return ModuleStatusTypeID }

// Serializable implements SerializableMessage.
func (m *ModuleStatus) Serializable() proto.Message { return &m.PbModuleStatus }
