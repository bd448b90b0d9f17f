package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Ключи hello и reply.
const (
	keyProxyUser  = "proxy_user"
	keyProxyZone  = "proxy_zone"
	keyClientUser = "client_user"
	keyClientZone = "client_zone"

	keyStatus  = "status"
	keyError   = "error"
	keyMessage = "message"
)

var marshalOpts = proto.MarshalOptions{Deterministic: true}

// WriteFrame записывает фрейм: Len(4) + Data.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > MaxMessageSize {
		return fmt.Errorf("message too large: %d > %d", len(data), MaxMessageSize)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame len: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write frame data: %w", err)
	}
	return nil
}

// ReadFrame читает один фрейм не длиннее maxSize.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read frame len: %w", err)
	}
	totalLen := binary.BigEndian.Uint32(lenBuf[:])
	if totalLen > uint32(maxSize) {
		return nil, fmt.Errorf("message too large: %d > %d", totalLen, maxSize)
	}

	data := make([]byte, totalLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read frame data: %w", err)
	}
	return data, nil
}

func messageToStruct(m Message) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(m))
	for k, v := range m {
		fields[k] = structpb.NewStringValue(v)
	}
	return &structpb.Struct{Fields: fields}
}

func structToMessage(s *structpb.Struct) (Message, error) {
	m := make(Message, len(s.GetFields()))
	for k, v := range s.GetFields() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%w: field %q is not a string", ErrInvalidInput, k)
		}
		m[k] = sv.StringValue
	}
	return m, nil
}

// MarshalMessage сериализует сообщение в protobuf (google.protobuf.Struct).
func MarshalMessage(m Message) ([]byte, error) {
	data, err := marshalOpts.Marshal(messageToStruct(m))
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return data, nil
}

// UnmarshalMessage разбирает сообщение из protobuf.
func UnmarshalMessage(data []byte) (Message, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return structToMessage(&s)
}

// WriteMessage сериализует сообщение и записывает его фреймом.
func WriteMessage(w io.Writer, m Message) error {
	data, err := MarshalMessage(m)
	if err != nil {
		return err
	}
	return WriteFrame(w, data)
}

// ReadMessage читает фрейм и разбирает сообщение.
func ReadMessage(r io.Reader, maxSize int) (Message, error) {
	data, err := ReadFrame(r, maxSize)
	if err != nil {
		return nil, err
	}
	return UnmarshalMessage(data)
}

// Hello стартовый пакет соединения: identity proxy и клиента, схема.
type Hello struct {
	ProxyUser  string
	ProxyZone  string
	ClientUser string
	ClientZone string
	Scheme     string
}

// Encode записывает Hello в writer.
func (h *Hello) Encode(w io.Writer) error {
	return WriteMessage(w, Message{
		keyProxyUser:  h.ProxyUser,
		keyProxyZone:  h.ProxyZone,
		keyClientUser: h.ClientUser,
		keyClientZone: h.ClientZone,
		KeyScheme:     h.Scheme,
	})
}

// DecodeHello читает Hello из reader.
func DecodeHello(r io.Reader, maxSize int) (*Hello, error) {
	m, err := ReadMessage(r, maxSize)
	if err != nil {
		return nil, err
	}
	if err := m.Require(keyProxyUser, keyProxyZone, KeyScheme); err != nil {
		return nil, fmt.Errorf("decode hello: %w", err)
	}

	h := &Hello{
		ProxyUser:  m[keyProxyUser],
		ProxyZone:  m[keyProxyZone],
		ClientUser: m[keyClientUser],
		ClientZone: m[keyClientZone],
		Scheme:     m[KeyScheme],
	}
	if h.ProxyUser == "" || h.Scheme == "" {
		return nil, fmt.Errorf("%w: hello without proxy user or scheme", ErrInvalidInput)
	}
	if len(h.ProxyUser) > MaxNameLen || len(h.ProxyZone) > MaxNameLen ||
		len(h.ClientUser) > MaxNameLen || len(h.ClientZone) > MaxNameLen {
		return nil, fmt.Errorf("%w: name too long", ErrInvalidInput)
	}
	return h, nil
}

// Reply ответ агента на один leg handshake.
type Reply struct {
	Status   byte
	ErrorMsg string
	Message  Message
}

// Encode записывает Reply в writer.
func (m *Reply) Encode(w io.Writer) error {
	data, err := MarshalReply(m)
	if err != nil {
		return err
	}
	return WriteFrame(w, data)
}

// DecodeReply читает Reply из reader.
func DecodeReply(r io.Reader, maxSize int) (*Reply, error) {
	data, err := ReadFrame(r, maxSize)
	if err != nil {
		return nil, err
	}
	return UnmarshalReply(data)
}

// MarshalReply сериализует Reply без фрейма (для NATS).
func MarshalReply(m *Reply) ([]byte, error) {
	errMsg := m.ErrorMsg
	if len(errMsg) > MaxErrorMsgLen {
		errMsg = errMsg[:MaxErrorMsgLen]
	}

	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		keyStatus: structpb.NewNumberValue(float64(m.Status)),
	}}
	if m.Status != StatusOK {
		s.Fields[keyError] = structpb.NewStringValue(errMsg)
	}
	if m.Message != nil {
		s.Fields[keyMessage] = structpb.NewStructValue(messageToStruct(m.Message))
	}

	data, err := marshalOpts.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}
	return data, nil
}

// UnmarshalReply разбирает Reply без фрейма.
func UnmarshalReply(data []byte) (*Reply, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal reply: %w", err)
	}

	status, ok := s.GetFields()[keyStatus].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, fmt.Errorf("%w: reply without status", ErrInvalidInput)
	}

	reply := &Reply{
		Status:   byte(status.NumberValue),
		ErrorMsg: s.GetFields()[keyError].GetStringValue(),
	}
	if inner := s.GetFields()[keyMessage].GetStructValue(); inner != nil {
		msg, err := structToMessage(inner)
		if err != nil {
			return nil, fmt.Errorf("decode reply message: %w", err)
		}
		reply.Message = msg
	}
	return reply, nil
}
