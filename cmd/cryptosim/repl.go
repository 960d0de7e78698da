package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/paperhands/cryptosim/account"
	"github.com/paperhands/cryptosim/engine"
	"github.com/paperhands/cryptosim/internal/config"
	"github.com/paperhands/cryptosim/leaderboard"
	"github.com/paperhands/cryptosim/storage"
	"github.com/paperhands/cryptosim/types"
)

// repl is the interactive surface. Every trading command builds an order
// struct and hands it to the engine; nothing here blocks the engine loop.
type repl struct {
	eng     *engine.Engine
	db      *storage.Database
	cfg     *config.Config
	session *account.Session
}

func newREPL(eng *engine.Engine, db *storage.Database, cfg *config.Config) *repl {
	return &repl{eng: eng, db: db, cfg: cfg}
}

func (r *repl) run() {
	fmt.Println("cryptosim — type 'help' for commands")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			if r.session != nil {
				r.eng.DetachSession()
			}
			return
		}
		r.dispatch(fields[0], fields[1:])
	}
}

func (r *repl) dispatch(cmd string, args []string) {
	var err error
	switch cmd {
	case "help":
		r.help()
	case "register":
		err = r.login(args, true)
	case "login":
		err = r.login(args, false)
	case "logout":
		r.eng.DetachSession()
		r.session = nil
	case "list":
		r.list()
	case "open":
		err = r.open(args)
	case "close":
		err = r.close(args)
	case "portfolio":
		r.portfolio()
	case "balance":
		r.balance()
	case "leaderboard":
		r.leaderboard(args)
	case "friend":
		err = r.friend(args)
	case "refresh":
		err = r.refresh()
	default:
		fmt.Println("unknown command, try 'help'")
	}
	if err != nil {
		fmt.Println("error:", err)
	}
}

func (r *repl) help() {
	fmt.Print(`commands:
  register <email> <password>             create an account and log in
  login <email> <password>                log in (restores saved state)
  logout                                  end the session
  list                                    show market prices
  open <asset> <amount> <leverage> <long|short> [tp] [sl]
  close <asset> <amount>                  close (part of) a position
  portfolio                               open positions and total value
  balance                                 cash balance
  leaderboard [friends]                   trader ranking
  friend <email>                          add a friend
  refresh                                 force a feed poll
  quit
`)
}

func (r *repl) login(args []string, register bool) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: login <email> <password>")
	}
	email, password := args[0], args[1]

	var (
		sess *account.Session
		err  error
	)
	if register {
		sess, err = account.Register(email, password, r.cfg.StartingBalance)
	} else {
		sess, err = account.Login(email, password, r.cfg.StartingBalance)
	}
	if err != nil {
		return err
	}

	// Restore persisted state for this email, or seed fresh records.
	if saved, err := r.db.LoadAccount(email); err != nil {
		log.Warn().Err(err).Msg("Load account failed, starting fresh")
	} else if saved != nil && !register {
		sess.Account = saved
	} else {
		if err := r.db.SaveAccount(sess.Account); err != nil {
			log.Warn().Err(err).Msg("Persist account failed")
		}
		if err := r.db.SaveBalance(sess.Account.ID, sess.Account.Cash); err != nil {
			log.Warn().Err(err).Msg("Persist balance failed")
		}
	}

	if r.session != nil {
		r.eng.DetachSession()
	}
	r.session = sess
	r.eng.AttachSession(sess)
	fmt.Printf("logged in as %s\n", email)
	return nil
}

func (r *repl) list() {
	assets := r.eng.Assets()
	if len(assets) == 0 {
		fmt.Println("no market data yet")
		return
	}
	for _, a := range assets {
		fmt.Printf("%-16s %-6s $%-14s %s%%\n",
			a.ID, strings.ToUpper(a.Symbol), a.CurrentPrice.StringFixed(2), a.PercentChange24.StringFixed(2))
	}
}

func (r *repl) open(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: open <asset> <amount> <leverage> <long|short> [tp] [sl]")
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("bad amount: %v", err)
	}
	leverage, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("bad leverage: %v", err)
	}
	var direction types.Direction
	switch strings.ToLower(args[3]) {
	case "long":
		direction = types.Long
	case "short":
		direction = types.Short
	default:
		return fmt.Errorf("direction must be long or short")
	}

	ord := types.Order{
		AssetID:   args[0],
		Amount:    amount,
		Leverage:  leverage,
		Direction: direction,
	}
	if len(args) > 4 {
		if ord.TakeProfit, err = decimal.NewFromString(args[4]); err != nil {
			return fmt.Errorf("bad take-profit: %v", err)
		}
	}
	if len(args) > 5 {
		if ord.StopLoss, err = decimal.NewFromString(args[5]); err != nil {
			return fmt.Errorf("bad stop-loss: %v", err)
		}
	}
	return r.eng.OpenPosition(ord)
}

func (r *repl) close(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: close <asset> <amount>")
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("bad amount: %v", err)
	}
	return r.eng.ClosePosition(args[0], amount)
}

func (r *repl) portfolio() {
	positions := r.eng.Positions()
	if len(positions) == 0 {
		fmt.Println("no open positions")
	}
	for _, p := range positions {
		tpsl := ""
		if !p.TakeProfit.IsZero() {
			tpsl += " tp=" + p.TakeProfit.StringFixed(2)
		}
		if !p.StopLoss.IsZero() {
			tpsl += " sl=" + p.StopLoss.StringFixed(2)
		}
		fmt.Printf("%-16s %s %dx  amount=%s  avg=$%s%s\n",
			p.AssetID, p.Direction, p.Leverage, p.Amount.String(), p.AvgEntryPrice.StringFixed(2), tpsl)
	}
	if total, err := r.eng.TotalValue(); err == nil {
		fmt.Printf("total value: $%s\n", total.StringFixed(2))
	}
}

func (r *repl) balance() {
	bal, err := r.eng.Balance()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("cash: $%s\n", bal.StringFixed(2))
}

func (r *repl) leaderboard(args []string) {
	board := r.eng.Leaderboard()
	if len(args) > 0 && args[0] == "friends" && r.session != nil {
		board = leaderboard.FilterFriends(board, r.session.Account.Email)
	}
	for _, e := range board {
		marker := " "
		if e.IsFriend {
			marker = "*"
		}
		fmt.Printf("%2d. %s %-28s $%s\n", e.Rank, marker, e.Email, e.TotalValue.StringFixed(2))
	}
}

func (r *repl) friend(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: friend <email>")
	}
	return r.eng.AddFriend(args[0])
}

func (r *repl) refresh() error {
	_, err := r.eng.Refresh()
	return err
}
