// Command client is a reference CLI client for exercising a running
// matchcored instance over its TCP wire protocol: place an order,
// cancel one, or request a log-book dump, then print execution/error
// reports as they arrive.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"matchcore/internal/domain"
)

const (
	typeHeartbeat = uint16(0)
	typeNewOrder  = uint16(1)
	typeCancel    = uint16(2)
	typeLogBook   = uint16(3)

	reportExecution = byte(0)
	reportError     = byte(1)
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the matchcored instance")
	userID := flag.String("user", "", "user id (required)")
	action := flag.String("action", "place", "action to perform: place, cancel, log")

	symbol := flag.String("symbol", "BTC-USD", "trading symbol")
	sideStr := flag.String("side", "buy", "order side: buy or sell")
	typeStr := flag.String("type", "limit", "order type: limit, market, ioc, fok")
	price := flag.String("price", "", "limit price as a decimal string, omit for market orders")
	qtyStr := flag.String("qty", "1", "quantity, or a comma-separated list to send several orders")

	orderID := flag.String("order-id", "", "order id to cancel (required for action=cancel)")

	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "error: -user is required")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s as %q\n", *serverAddr, *userID)

	go readReports(conn)

	side := domain.Buy
	if strings.EqualFold(*sideStr, "sell") {
		side = domain.Sell
	}
	orderType := parseOrderType(*typeStr)

	switch strings.ToLower(*action) {
	case "place":
		for _, qty := range strings.Split(*qtyStr, ",") {
			qty = strings.TrimSpace(qty)
			if qty == "" {
				continue
			}
			if err := sendNewOrder(conn, *symbol, side, orderType, *price, qty, *userID); err != nil {
				log.Printf("failed to send order (qty %s): %v", qty, err)
				continue
			}
			fmt.Printf("-> sent %s %s %s %s@%s\n", strings.ToUpper(*sideStr), orderType, *symbol, qty, *price)
			time.Sleep(5 * time.Millisecond)
		}
	case "cancel":
		if *orderID == "" {
			log.Fatal("error: -order-id is required for action=cancel")
		}
		if err := sendCancelOrder(conn, *symbol, *orderID); err != nil {
			log.Printf("failed to send cancel: %v", err)
		} else {
			fmt.Printf("-> sent cancel for order %s\n", *orderID)
		}
	case "log":
		if err := sendLogBook(conn); err != nil {
			log.Printf("failed to send log request: %v", err)
		}
	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("listening for reports... (ctrl-c to exit)")
	select {}
}

func parseOrderType(s string) domain.OrderType {
	switch strings.ToLower(s) {
	case "market":
		return domain.Market
	case "ioc":
		return domain.IOC
	case "fok":
		return domain.FOK
	default:
		return domain.Limit
	}
}

func appendString(buf []byte, s string) []byte {
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(s)))
	buf = append(buf, lenBuf...)
	return append(buf, s...)
}

// sendFrame wraps payload in the 4-byte big-endian length prefix every
// matchcored connection expects before a type-tagged message body.
func sendFrame(conn net.Conn, payload []byte) error {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := conn.Write(header); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

func sendNewOrder(conn net.Conn, symbol string, side domain.Side, orderType domain.OrderType, price, qty, userID string) error {
	hasPrice := price != ""
	if orderType == domain.Market {
		hasPrice = false
	}

	buf := make([]byte, 2, 32+len(symbol)+len(price)+len(qty)+len(userID))
	binary.BigEndian.PutUint16(buf[0:2], typeNewOrder)

	buf = append(buf, byte(side), byte(orderType))
	if hasPrice {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendString(buf, symbol)
	if hasPrice {
		buf = appendString(buf, price)
	}
	buf = appendString(buf, qty)
	buf = appendString(buf, userID)

	return sendFrame(conn, buf)
}

func sendCancelOrder(conn net.Conn, symbol, orderID string) error {
	buf := make([]byte, 2, 16+len(symbol)+len(orderID))
	binary.BigEndian.PutUint16(buf[0:2], typeCancel)
	buf = appendString(buf, symbol)
	buf = appendString(buf, orderID)
	return sendFrame(conn, buf)
}

func sendLogBook(conn net.Conn) error {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf[0:2], typeLogBook)
	return sendFrame(conn, buf)
}

// readReports continuously reads length-prefixed report frames and
// prints them until the connection closes.
func readReports(conn net.Conn) {
	for {
		header := make([]byte, 4)
		if _, err := io.ReadFull(conn, header); err != nil {
			if err != io.EOF {
				log.Printf("connection lost: %v", err)
			}
			os.Exit(0)
		}
		frameLen := binary.BigEndian.Uint32(header)
		body := make([]byte, frameLen)
		if _, err := io.ReadFull(conn, body); err != nil {
			log.Printf("error reading report body: %v", err)
			return
		}
		printReport(body)
	}
}

func printReport(body []byte) {
	if len(body) < 1 {
		return
	}
	msgType := body[0]
	off := 1

	orderID, n, err := readLengthPrefixed(body[off:])
	if err != nil {
		return
	}
	off += n

	status, n, err := readLengthPrefixed(body[off:])
	if err != nil {
		return
	}
	off += n

	message, _, err := readLengthPrefixed(body[off:])
	if err != nil {
		return
	}

	if msgType == reportError {
		fmt.Printf("\n[ERROR] order=%s %s\n", orderID, message)
		return
	}
	fmt.Printf("\n[EXECUTION] order=%s status=%s %s\n", orderID, status, message)
}

func readLengthPrefixed(b []byte) (string, int, error) {
	if len(b) < 2 {
		return "", 0, fmt.Errorf("truncated field")
	}
	n := int(binary.BigEndian.Uint16(b[0:2]))
	if len(b) < 2+n {
		return "", 0, fmt.Errorf("truncated field")
	}
	return string(b[2 : 2+n]), 2 + n, nil
}
