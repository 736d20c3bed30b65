package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/tarancss/balproc/lib/store"
	"github.com/tarancss/balproc/lib/store/db"
	"github.com/tarancss/balproc/lib/util"
)

// Errors returned to client requests.
var (
	ErrNoAddr  = errors.New("undefined address - missing in uri")
	ErrBadAddr = errors.New("address must be a 20-byte hex string")
)

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  string `json:"body"`
	Error string `json:"error,omitempty"`
}

// AccountBalance is the body of the account request.
type AccountBalance struct {
	Address string            `json:"address"`
	Balance string            `json:"balance,omitempty"`
	Tokens  map[string]string `json:"erc20token"`
}

func (st *Status) reply(rw http.ResponseWriter, r *http.Request, code int, res Response, err error) {
	st.log.WithField("remote", r.RemoteAddr).WithField("uri", r.RequestURI).WithField("status", code).
		WithError(err).Debug("httpreq")

	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(&res)
}

// homeHandler just replies a welcome message to the client.
func (st *Status) homeHandler(rw http.ResponseWriter, r *http.Request) {
	st.reply(rw, r, http.StatusOK, Response{Body: "Hello, this is your balance processor!"}, nil)
}

// healthHandler replies whether the store can be reached.
func (st *Status) healthHandler(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if err := db.Ping(ctx, st.db); err != nil {
		st.reply(rw, r, http.StatusServiceUnavailable, Response{Error: fmt.Sprintf("%s", err)}, err)

		return
	}

	st.reply(rw, r, http.StatusOK, Response{Body: "ok"}, nil)
}

// accountHandler replies the balances stored for the address requested.
func (st *Status) accountHandler(rw http.ResponseWriter, r *http.Request) {
	var (
		err  error
		res  Response
		code = http.StatusOK
	)

	defer func() {
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)
		}

		st.reply(rw, r, code, res, err)
	}()

	address, ok := mux.Vars(r)["address"]
	if !ok {
		code, err = http.StatusBadRequest, ErrNoAddr

		return
	}

	if !common.IsHexAddress(address) {
		code, err = http.StatusBadRequest, ErrBadAddr

		return
	}

	acc, err := st.db.GetAccount(r.Context(), util.NormAddress(address))
	if errors.Is(err, store.ErrAddrNotFound) {
		code = http.StatusNotFound

		return
	}

	if err != nil {
		code = http.StatusInternalServerError

		return
	}

	ab := AccountBalance{Address: acc.Address, Balance: store.FormatBalance(acc.Balance), Tokens: map[string]string{}}
	for token, v := range acc.Tokens {
		ab.Tokens[token] = v.String()
	}

	tmp, _ := json.Marshal(ab)
	res.Body = string(tmp)
}
