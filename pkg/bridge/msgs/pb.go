package msgs

import "github.com/golang/protobuf/proto"

// Wire schemas. Fields carry protobuf tags, encoding follows proto3.

// PbTyped is the envelope of every message on the wire.
type PbTyped struct {
	TypeId   uint32 `protobuf:"varint,1,opt,name=type_id,json=typeId,proto3" json:"type_id,omitempty"`
	Sequence uint32 `protobuf:"varint,2,opt,name=sequence,proto3" json:"sequence,omitempty"`
	Message  []byte `protobuf:"bytes,3,opt,name=message,proto3" json:"message,omitempty"`
}

func (m *PbTyped) Reset()         { *m = PbTyped{} }
func (m *PbTyped) String() string { return proto.CompactTextString(m) }
func (*PbTyped) ProtoMessage()    {}

// PbCommandOK is the empty success reply.
type PbCommandOK struct {
}

func (m *PbCommandOK) Reset()         { *m = PbCommandOK{} }
func (m *PbCommandOK) String() string { return proto.CompactTextString(m) }
func (*PbCommandOK) ProtoMessage()    {}

// PbCommandErr is the failure reply.
type PbCommandErr struct {
	Message string `protobuf:"bytes,1,opt,name=message,proto3" json:"message,omitempty"`
}

func (m *PbCommandErr) Reset()         { *m = PbCommandErr{} }
func (m *PbCommandErr) String() string { return proto.CompactTextString(m) }
func (*PbCommandErr) ProtoMessage()    {}

// PbSetPosition moves a joint axis or a spin motor.
type PbSetPosition struct {
	Serial string  `protobuf:"bytes,1,opt,name=serial,proto3" json:"serial,omitempty"`
	Axis   string  `protobuf:"bytes,2,opt,name=axis,proto3" json:"axis,omitempty"`
	Value  float64 `protobuf:"fixed64,3,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *PbSetPosition) Reset()         { *m = PbSetPosition{} }
func (m *PbSetPosition) String() string { return proto.CompactTextString(m) }
func (*PbSetPosition) ProtoMessage()    {}

// PbSetSpeed sets the speed of a joint axis or a spin motor.
type PbSetSpeed struct {
	Serial string  `protobuf:"bytes,1,opt,name=serial,proto3" json:"serial,omitempty"`
	Axis   string  `protobuf:"bytes,2,opt,name=axis,proto3" json:"axis,omitempty"`
	Value  float64 `protobuf:"fixed64,3,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *PbSetSpeed) Reset()         { *m = PbSetSpeed{} }
func (m *PbSetSpeed) String() string { return proto.CompactTextString(m) }
func (*PbSetSpeed) ProtoMessage()    {}

// PbSetTorque sets the torque of a joint axis or a spin motor in percent.
type PbSetTorque struct {
	Serial string  `protobuf:"bytes,1,opt,name=serial,proto3" json:"serial,omitempty"`
	Axis   string  `protobuf:"bytes,2,opt,name=axis,proto3" json:"axis,omitempty"`
	Value  float64 `protobuf:"fixed64,3,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *PbSetTorque) Reset()         { *m = PbSetTorque{} }
func (m *PbSetTorque) String() string { return proto.CompactTextString(m) }
func (*PbSetTorque) ProtoMessage()    {}

// PbReadField reads a field with the freshness guarantee.
type PbReadField struct {
	Serial string `protobuf:"bytes,1,opt,name=serial,proto3" json:"serial,omitempty"`
	Field  string `protobuf:"bytes,2,opt,name=field,proto3" json:"field,omitempty"`
}

func (m *PbReadField) Reset()         { *m = PbReadField{} }
func (m *PbReadField) String() string { return proto.CompactTextString(m) }
func (*PbReadField) ProtoMessage()    {}

// PbFieldValue replies PbReadField.
type PbFieldValue struct {
	Serial string `protobuf:"bytes,1,opt,name=serial,proto3" json:"serial,omitempty"`
	Field  string `protobuf:"bytes,2,opt,name=field,proto3" json:"field,omitempty"`
	Int    int64  `protobuf:"varint,3,opt,name=int,proto3" json:"int,omitempty"`
	Bytes  []byte `protobuf:"bytes,4,opt,name=bytes,proto3" json:"bytes,omitempty"`
}

func (m *PbFieldValue) Reset()         { *m = PbFieldValue{} }
func (m *PbFieldValue) String() string { return proto.CompactTextString(m) }
func (*PbFieldValue) ProtoMessage()    {}

// PbListModules queries attached modules.
type PbListModules struct {
}

func (m *PbListModules) Reset()         { *m = PbListModules{} }
func (m *PbListModules) String() string { return proto.CompactTextString(m) }
func (*PbListModules) ProtoMessage()    {}

// PbModuleStatus is the health of a module, also sent as an event.
type PbModuleStatus struct {
	Serial     string  `protobuf:"bytes,1,opt,name=serial,proto3" json:"serial,omitempty"`
	Type       string  `protobuf:"bytes,2,opt,name=type,proto3" json:"type,omitempty"`
	RadioId    int32   `protobuf:"varint,3,opt,name=radio_id,json=radioId,proto3" json:"radio_id,omitempty"`
	Status     int32   `protobuf:"varint,4,opt,name=status,proto3" json:"status,omitempty"`
	Quality    float64 `protobuf:"fixed64,5,opt,name=quality,proto3" json:"quality,omitempty"`
	Cycles     uint64  `protobuf:"varint,6,opt,name=cycles,proto3" json:"cycles,omitempty"`
	ErrorCount int32   `protobuf:"varint,7,opt,name=error_count,json=errorCount,proto3" json:"error_count,omitempty"`
	Locked     bool    `protobuf:"varint,8,opt,name=locked,proto3" json:"locked,omitempty"`
	LastSyncMs int64   `protobuf:"varint,9,opt,name=last_sync_ms,json=lastSyncMs,proto3" json:"last_sync_ms,omitempty"`
}

func (m *PbModuleStatus) Reset()         { *m = PbModuleStatus{} }
func (m *PbModuleStatus) String() string { return proto.CompactTextString(m) }
func (*PbModuleStatus) ProtoMessage()    {}

// PbModuleList replies PbListModules.
type PbModuleList struct {
	Modules []*PbModuleStatus `protobuf:"bytes,1,rep,name=modules,proto3" json:"modules,omitempty"`
}

func (m *PbModuleList) Reset()         { *m = PbModuleList{} }
func (m *PbModuleList) String() string { return proto.CompactTextString(m) }
func (*PbModuleList) ProtoMessage()    {}

// PbTerminate releases a module.
type PbTerminate struct {
	Serial string `protobuf:"bytes,1,opt,name=serial,proto3" json:"serial,omitempty"`
}

func (m *PbTerminate) Reset()         { *m = PbTerminate{} }
func (m *PbTerminate) String() string { return proto.CompactTextString(m) }
func (*PbTerminate) ProtoMessage()    {}
