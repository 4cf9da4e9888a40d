package net

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"matchcore/internal/domain"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort     = errors.New("message too short for specified field lengths")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	LogBook
)

type ReportMessageType uint8

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
)

type Message interface {
	GetType() MessageType
}

// BaseMessageHeaderLen is the 2-byte message-type header every frame
// starts with.
const BaseMessageHeaderLen = 2

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

// parseMessage decodes one frame. Unlike the fixed-width protocol this
// replaces, every variable-length field (symbol, order id, price,
// quantity, user id) is length-prefixed rather than padded to a fixed
// byte count: money fields carry exact decimal strings, never a
// float64 bit pattern or a fixed-point integer that would impose an
// implicit tick size.
func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, ErrMessageTooShort
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(msg)
	case CancelOrder:
		return parseCancelOrder(msg)
	case LogBook:
		return BaseMessage{TypeOf: LogBook}, nil
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

// readString reads a 2-byte big-endian length followed by that many
// bytes, returning the decoded string and bytes consumed.
func readString(b []byte) (string, int, error) {
	if len(b) < 2 {
		return "", 0, ErrMessageTooShort
	}
	n := int(binary.BigEndian.Uint16(b[0:2]))
	if len(b) < 2+n {
		return "", 0, ErrMessageTooShort
	}
	return string(b[2 : 2+n]), 2 + n, nil
}

// NewOrderMessage is the wire form of a new order submission.
type NewOrderMessage struct {
	BaseMessage
	Symbol    string
	Side      domain.Side
	OrderType domain.OrderType
	HasPrice  bool
	Price     string // exact decimal string, present only if HasPrice
	Quantity  string // exact decimal string
	UserID    string
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	if len(msg) < 3 {
		return m, ErrMessageTooShort
	}
	m.Side = domain.Side(msg[0])
	m.OrderType = domain.OrderType(msg[1])
	m.HasPrice = msg[2] != 0
	off := 3

	symbol, n, err := readString(msg[off:])
	if err != nil {
		return m, err
	}
	m.Symbol = symbol
	off += n

	if m.HasPrice {
		price, n, err := readString(msg[off:])
		if err != nil {
			return m, err
		}
		m.Price = price
		off += n
	}

	quantity, n, err := readString(msg[off:])
	if err != nil {
		return m, err
	}
	m.Quantity = quantity
	off += n

	userID, _, err := readString(msg[off:])
	if err != nil {
		return m, err
	}
	m.UserID = userID
	return m, nil
}

// Order reconstructs a domain.Order from the wire message, parsing
// decimal fields exactly at this boundary.
func (m *NewOrderMessage) Order() (domain.Order, error) {
	o := domain.Order{
		Symbol:    m.Symbol,
		Side:      m.Side,
		OrderType: m.OrderType,
		UserID:    m.UserID,
	}
	qty, err := decimal.NewFromString(m.Quantity)
	if err != nil {
		return o, fmt.Errorf("quantity: %w", err)
	}
	o.Quantity = qty

	if m.HasPrice {
		price, err := decimal.NewFromString(m.Price)
		if err != nil {
			return o, fmt.Errorf("price: %w", err)
		}
		o.Price = price
		o.HasPrice = true
	}
	return o, nil
}

// CancelOrderMessage is the wire form of a cancel request.
type CancelOrderMessage struct {
	BaseMessage
	Symbol  string
	OrderID string
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	m := CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}}

	symbol, n, err := readString(msg)
	if err != nil {
		return m, err
	}
	m.Symbol = symbol

	orderID, _, err := readString(msg[n:])
	if err != nil {
		return m, err
	}
	m.OrderID = orderID
	return m, nil
}

// Report is the wire form of an execution or error acknowledgment
// pushed back to the submitting connection.
type Report struct {
	MessageType ReportMessageType
	OrderID     string
	Status      string
	Message     string
}

// Serialize renders the report as one length-prefixed-field frame:
// type byte, then order_id/status/message as length-prefixed strings.
func (r *Report) Serialize() ([]byte, error) {
	buf := make([]byte, 0, 1+2+len(r.OrderID)+2+len(r.Status)+2+len(r.Message))
	buf = append(buf, byte(r.MessageType))
	buf = appendString(buf, r.OrderID)
	buf = appendString(buf, r.Status)
	buf = appendString(buf, r.Message)
	return buf, nil
}

func appendString(buf []byte, s string) []byte {
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(s)))
	buf = append(buf, lenBuf...)
	return append(buf, s...)
}

// generateExecutionReport builds the acknowledgment frame for a
// processed submission.
func generateExecutionReport(orderID, status, message string) ([]byte, error) {
	r := Report{MessageType: ExecutionReport, OrderID: orderID, Status: status, Message: message}
	return r.Serialize()
}

// generateErrorReport builds the acknowledgment frame for a rejected
// or failed submission.
func generateErrorReport(orderID string, err error) ([]byte, error) {
	r := Report{MessageType: ErrorReport, OrderID: orderID, Message: err.Error()}
	return r.Serialize()
}
