package server

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"feeshare/core"
	"feeshare/crypto"
	nativecommon "feeshare/native/common"
	"feeshare/native/token"
	"feeshare/services/feeshared/journal"
	"feeshare/services/feeshared/middleware"
)

const maxBodyBytes = 1 << 16

type stakerResponse struct {
	Address    string `json:"address"`
	Staked     string `json:"staked"`
	Earned     string `json:"earned"`
	RewardDebt string `json:"rewardDebt"`
	Unclaimed  string `json:"unclaimed"`
}

type stakingPoolResponse struct {
	StakeToken       string `json:"stakeToken"`
	RewardToken      string `json:"rewardToken"`
	TotalStaked      string `json:"totalStaked"`
	RewardPerToken   string `json:"rewardPerToken"`
	TotalDistributed string `json:"totalDistributed"`
	TotalClaimed     string `json:"totalClaimed"`
}

type poolResponse struct {
	ID                 string `json:"id"`
	Address            string `json:"address"`
	Token0             string `json:"token0"`
	Token1             string `json:"token1"`
	Fee                uint32 `json:"fee"`
	Reserve0           string `json:"reserve0"`
	Reserve1           string `json:"reserve1"`
	Liquidity          string `json:"liquidity"`
	ProtocolFees0      string `json:"protocolFees0"`
	ProtocolFees1      string `json:"protocolFees1"`
	FeeProtocol0       uint8  `json:"feeProtocol0"`
	FeeProtocol1       uint8  `json:"feeProtocol1"`
	FeeShareConfigured bool   `json:"feeShareConfigured"`
}

type balanceResponse struct {
	Token  string `json:"token"`
	Symbol string `json:"symbol,omitempty"`
	Amount string `json:"amount"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type approveRequest struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type transferRequest struct {
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type swapRequest struct {
	TokenIn          string `json:"tokenIn"`
	TokenOut         string `json:"tokenOut"`
	Fee              uint32 `json:"fee"`
	Recipient        string `json:"recipient,omitempty"`
	AmountIn         string `json:"amountIn"`
	AmountOutMinimum string `json:"amountOutMinimum,omitempty"`
	// Deadline is a unix timestamp in seconds; zero disables the check.
	Deadline int64 `json:"deadline,omitempty"`
}

type convertRequest struct {
	TokenIn  string `json:"tokenIn"`
	AmountIn string `json:"amountIn"`
	FeeTier  uint32 `json:"feeTier"`
	MinOut   string `json:"minOut,omitempty"`
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func toPoolResponse(p core.PoolView) poolResponse {
	return poolResponse{
		ID:                 hexutil.Encode(p.ID[:]),
		Address:            p.Address.String(),
		Token0:             p.Token0.String(),
		Token1:             p.Token1.String(),
		Fee:                p.Fee,
		Reserve0:           amountString(p.Reserve0),
		Reserve1:           amountString(p.Reserve1),
		Liquidity:          amountString(p.Liquidity),
		ProtocolFees0:      amountString(p.ProtocolFees0),
		ProtocolFees1:      amountString(p.ProtocolFees1),
		FeeProtocol0:       p.FeeProtocol0,
		FeeProtocol1:       p.FeeProtocol1,
		FeeShareConfigured: p.FeeShareConfigured,
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

// parseAmount accepts a non-negative base-10 integer. Positivity is enforced
// by the engines so that zero amounts surface their own error.
func parseAmount(field, raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid %s %q", errBadRequest, field, raw)
	}
	return value, nil
}

func parseAddress(field, raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: invalid %s: %v", errBadRequest, field, err)
	}
	return addr, nil
}

// parseToken accepts either an address or a ticker symbol.
func parseToken(field, raw string) (crypto.Address, error) {
	if raw == "" {
		return crypto.Address{}, fmt.Errorf("%w: %s required", errBadRequest, field)
	}
	if addr, err := crypto.DecodeAddress(raw); err == nil {
		return addr, nil
	}
	return token.AddressForSymbol(raw), nil
}

func parsePoolID(raw string) ([32]byte, error) {
	var id [32]byte
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != len(id) {
		return id, fmt.Errorf("%w: invalid pool id %q", errBadRequest, raw)
	}
	copy(id[:], b)
	return id, nil
}

func caller(r *http.Request) crypto.Address {
	addr, _ := middleware.CallerFrom(r.Context())
	return addr
}

func (s *Server) handleStakingPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.node.StakingPool()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, stakingPoolResponse{
		StakeToken:       s.node.StakeToken().String(),
		RewardToken:      s.node.RewardToken().String(),
		TotalStaked:      amountString(pool.TotalStaked),
		RewardPerToken:   amountString(pool.RewardPerToken),
		TotalDistributed: amountString(pool.TotalDistributed),
		TotalClaimed:     amountString(pool.TotalClaimed),
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "addr"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.node.Staker(addr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, stakerResponse{
		Address:    view.Address.String(),
		Staked:     amountString(view.Staked),
		Earned:     amountString(view.Earned),
		RewardDebt: amountString(view.RewardDebt),
		Unclaimed:  amountString(view.Unclaimed),
	})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "addr"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tokens := s.node.Tokens()
	if raw := r.URL.Query().Get("token"); raw != "" {
		tok, err := parseToken("token", raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		tokens = []crypto.Address{tok}
	}
	out := make([]balanceResponse, 0, len(tokens))
	for _, tok := range tokens {
		amount, err := s.node.BalanceOf(tok, addr)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out = append(out, balanceResponse{Token: tok.String(), Amount: amount.String()})
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleCustody(w http.ResponseWriter, r *http.Request) {
	balances, err := s.node.CustodyBalances()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]balanceResponse, 0, len(balances))
	for _, bal := range balances {
		out = append(out, balanceResponse{Token: bal.Token.String(), Symbol: bal.Symbol, Amount: bal.Amount.String()})
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.node.Pools()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]poolResponse, 0, len(pools))
	for _, p := range pools {
		out = append(out, toPoolResponse(p))
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	id, err := parsePoolID(chi.URLParam(r, "pool"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pool, err := s.node.Pool(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toPoolResponse(*pool))
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	id, err := parsePoolID(chi.URLParam(r, "pool"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	query := r.URL.Query()
	tokenIn, err := parseToken("tokenIn", query.Get("tokenIn"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amountIn, err := parseAmount("amountIn", query.Get("amountIn"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.node.Quote(id, tokenIn, amountIn)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"amountOut": out.String()})
}

func parseFilter(r *http.Request) (journal.Filter, error) {
	query := r.URL.Query()
	filter := journal.Filter{Type: query.Get("type")}
	if raw := query.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("%w: invalid after %q", errBadRequest, raw)
		}
		filter.AfterSeq = after
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, fmt.Errorf("%w: invalid limit %q", errBadRequest, raw)
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, entries)
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	totals, err := s.journal.Replay(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stakes := make(map[string]string, len(totals.Stakes))
	for k, v := range totals.Stakes {
		stakes[k] = v.String()
	}
	paid := make(map[string]string, len(totals.Paid))
	for k, v := range totals.Paid {
		paid[k] = v.String()
	}
	collected := make(map[string]string, len(totals.Collected))
	for k, v := range totals.Collected {
		collected[k] = v.String()
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"totalStaked":    amountString(totals.TotalStaked),
		"distributed":    amountString(totals.Distributed),
		"claimed":        amountString(totals.Claimed),
		"rewardPerToken": amountString(totals.RewardPerToken),
		"stakes":         stakes,
		"paid":           paid,
		"collected":      collected,
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tok, err := parseToken("token", req.Token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.node.Approve(r.Context(), tok, caller(r), spender, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tok, err := parseToken("token", req.Token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.node.Transfer(r.Context(), tok, caller(r), to, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	params := nativecommon.ExactInputSingleParams{Fee: req.Fee, Recipient: caller(r)}
	var err error
	if params.TokenIn, err = parseToken("tokenIn", req.TokenIn); err != nil {
		s.fail(w, r, err)
		return
	}
	if params.TokenOut, err = parseToken("tokenOut", req.TokenOut); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Recipient != "" {
		if params.Recipient, err = parseAddress("recipient", req.Recipient); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if params.AmountIn, err = parseAmount("amountIn", req.AmountIn); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.AmountOutMinimum != "" {
		if params.AmountOutMinimum, err = parseAmount("amountOutMinimum", req.AmountOutMinimum); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if req.Deadline > 0 {
		params.Deadline = time.Unix(req.Deadline, 0)
	}
	out, err := s.node.Swap(r.Context(), caller(r), params)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"amountOut": out.String()})
}

func (s *Server) decodeAmount(w http.ResponseWriter, r *http.Request) (*big.Int, bool) {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return amount, true
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	amount, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}
	if err := s.node.Stake(r.Context(), caller(r), amount); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	amount, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}
	if err := s.node.Withdraw(r.Context(), caller(r), amount); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	paid, err := s.node.Claim(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"paid": paid.String()})
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	withdrawn, paid, err := s.node.Exit(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"withdrawn": withdrawn.String(),
		"paid":      paid.String(),
	})
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	amount, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}
	rpt, err := s.node.Distribute(r.Context(), caller(r), amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"rewardPerToken": rpt.String()})
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	id, err := parsePoolID(chi.URLParam(r, "pool"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.node.ConfigureFeeShare(r.Context(), caller(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHarvest(w http.ResponseWriter, r *http.Request) {
	id, err := parsePoolID(chi.URLParam(r, "pool"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount0, amount1, err := s.node.Harvest(r.Context(), caller(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"amount0": amount0.String(),
		"amount1": amount1.String(),
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tokenIn, err := parseToken("tokenIn", req.TokenIn)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amountIn, err := parseAmount("amountIn", req.AmountIn)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var out *big.Int
	if req.MinOut != "" {
		minOut, perr := parseAmount("minOut", req.MinOut)
		if perr != nil {
			s.fail(w, r, perr)
			return
		}
		out, err = s.node.ConvertAndDistributeWithMinimum(r.Context(), caller(r), tokenIn, amountIn, req.FeeTier, minOut)
	} else {
		out, err = s.node.ConvertAndDistribute(r.Context(), caller(r), tokenIn, amountIn, req.FeeTier)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"distributed": out.String()})
}
