package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/lxvenue/matchd/internal/book"
	"github.com/lxvenue/matchd/internal/matching"
)

func (s *session) handleLine(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToUpper(fields[0])
	args := fields[1:]

	switch cmd {
	case "PING":
		s.writeLine("PONG")
	case "AUTH":
		s.handleAuth(args)
	case "NEWL":
		s.handleNew(args, book.Limit)
	case "NEWM":
		s.handleNew(args, book.Market)
	case "CANC":
		s.handleCancel(args)
	case "SUB":
		s.handleSub(args)
	case "UNSUB":
		s.handleUnsub(args)
	case "QUOTE":
		s.handleQuote(args)
	case "DEBUG":
		s.handleDebug(args)
	default:
		s.writeLine(errFrame("BAD_COMMAND"))
	}
}

func (s *session) handleAuth(args []string) {
	if len(args) != 2 {
		s.writeLine(errFrame("BAD_COMMAND"))
		return
	}
	passkey, clientID := args[0], args[1]

	if err := bcrypt.CompareHashAndPassword(s.server.passkeyHash, []byte(passkey)); err != nil {
		s.writeLine(errFrame("BAD_PASSKEY"))
		return
	}

	s.server.bindSession(clientID, s)
	s.writeLine("OK AUTH")
}

func (s *session) handleNew(args []string, typ book.OrderType) {
	clientID := s.currentClientID()
	if clientID == "" {
		s.writeLine(errFrame("UNAUTHORIZED"))
		return
	}

	wantArgs := 3
	if typ == book.Limit {
		wantArgs = 4
	}
	if len(args) != wantArgs {
		s.writeLine(errFrame("BAD_COMMAND"))
		return
	}

	side, ok := parseSide(args[0])
	if !ok {
		s.writeLine(errFrame(string(matching.ReasonBadSide)))
		return
	}
	symbol := args[1]
	if symbol == "" {
		s.writeLine(errFrame(string(matching.ReasonBadSymbol)))
		return
	}
	qty, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		s.writeLine(errFrame(string(matching.ReasonBadQty)))
		return
	}

	var price uint64
	if typ == book.Limit {
		price, err = strconv.ParseUint(args[3], 10, 64)
		if err != nil {
			s.writeLine(errFrame(string(matching.ReasonBadPrice)))
			return
		}
	}

	intent := matching.NewOrderIntent{
		ClientID: clientID,
		Side:     side,
		Type:     typ,
		Price:    price,
		Qty:      qty,
	}

	result, err := s.server.manager.Submit(symbol, intent)
	if err != nil {
		if rej, ok := err.(*matching.RejectedError); ok {
			s.writeLine(errFrame(string(rej.Reason)))
		} else {
			s.writeLine(errFrame("BAD_COMMAND"))
		}
		return
	}

	s.rememberOrder(result.OrderID, symbol)
	s.writeLine(fmt.Sprintf("OK NEW %d", result.OrderID))
}

func (s *session) handleCancel(args []string) {
	clientID := s.currentClientID()
	if clientID == "" {
		s.writeLine(errFrame("UNAUTHORIZED"))
		return
	}
	if len(args) != 1 {
		s.writeLine(errFrame("BAD_COMMAND"))
		return
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		s.writeLine(errFrame("BAD_COMMAND"))
		return
	}

	symbol, ok := s.lookupOrder(id)
	if !ok {
		s.writeLine(errFrame(string(matching.ReasonNotFound)))
		return
	}

	if err := s.server.manager.Cancel(symbol, id, clientID); err != nil {
		if rej, ok := err.(*matching.RejectedError); ok {
			s.writeLine(errFrame(string(rej.Reason)))
		} else {
			s.writeLine(errFrame("BAD_COMMAND"))
		}
		return
	}
	s.forgetOrder(id)
	s.writeLine(fmt.Sprintf("OK CANC %d", id))
}

func (s *session) handleSub(args []string) {
	clientID := s.currentClientID()
	if clientID == "" {
		s.writeLine(errFrame("UNAUTHORIZED"))
		return
	}
	if len(args) != 1 {
		s.writeLine(errFrame("BAD_COMMAND"))
		return
	}
	s.server.hub.Subscribe(clientID, args[0])
	s.writeLine("OK SUB " + args[0])
}

func (s *session) handleUnsub(args []string) {
	clientID := s.currentClientID()
	if clientID == "" {
		s.writeLine(errFrame("UNAUTHORIZED"))
		return
	}
	if len(args) != 1 {
		s.writeLine(errFrame("BAD_COMMAND"))
		return
	}
	s.server.hub.Unsubscribe(clientID, args[0])
	s.writeLine("OK UNSUB " + args[0])
}

func (s *session) handleQuote(args []string) {
	clientID := s.currentClientID()
	if clientID == "" {
		s.writeLine(errFrame("UNAUTHORIZED"))
		return
	}
	if len(args) != 1 {
		s.writeLine(errFrame("BAD_COMMAND"))
		return
	}
	symbol := args[0]
	if err := s.server.manager.Snapshot(symbol, clientID); err != nil {
		if rej, ok := err.(*matching.RejectedError); ok {
			s.writeLine(errFrame(string(rej.Reason)))
		} else {
			s.writeLine(errFrame("BAD_COMMAND"))
		}
		return
	}
	s.writeLine("OK QUOTE " + symbol)
}

func (s *session) handleDebug(args []string) {
	if len(args) == 0 {
		s.writeLine(errFrame("BAD_COMMAND"))
		return
	}
	sub := strings.ToUpper(args[0])

	if sub == "AUTH" {
		if len(args) != 2 {
			s.writeLine(errFrame("BAD_COMMAND"))
			return
		}
		if err := bcrypt.CompareHashAndPassword(s.server.debugSecretHash, []byte(args[1])); err != nil {
			s.writeLine(errFrame("BAD_PASSKEY"))
			return
		}
		s.mu.Lock()
		s.debugElevated = true
		s.mu.Unlock()
		s.writeLine("OK DEBUG AUTH")
		return
	}

	s.mu.Lock()
	elevated := s.debugElevated
	s.mu.Unlock()
	if !elevated {
		s.writeLine(errFrame("UNAUTHORIZED"))
		return
	}

	switch sub {
	case "INSTRUMENTS":
		for _, symbol := range s.server.manager.Symbols() {
			s.writeLine("INSTRUMENT " + symbol)
		}
		s.writeLine("")

	case "ORDERS":
		if len(args) != 2 {
			s.writeLine(errFrame("BAD_COMMAND"))
			return
		}
		orders, err := s.server.manager.DebugOrders(args[1])
		if err != nil {
			s.writeLine(errFrame(string(matching.ReasonBadSymbol)))
			return
		}
		for _, o := range orders {
			s.writeLine(fmt.Sprintf("ORDER %d %s %s %d %d", o.OrderID, o.ClientID, sideToken(o.Side), o.Price, o.Remaining))
		}
		s.writeLine("")

	case "LIST":
		for _, symbol := range s.server.manager.Symbols() {
			s.writeLine("INSTRUMENT " + symbol)
		}
		s.writeLine("")

	default:
		s.writeLine(errFrame("BAD_COMMAND"))
	}
}

func (s *session) rememberOrder(id uint64, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orders == nil {
		s.orders = make(map[uint64]string)
	}
	s.orders[id] = symbol
}

func (s *session) forgetOrder(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
}

func (s *session) lookupOrder(id uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	symbol, ok := s.orders[id]
	return symbol, ok
}
