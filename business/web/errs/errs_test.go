package errs_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ardanlabs/dpos/business/web/errs"
	"github.com/ardanlabs/dpos/foundation/blockchain/codec"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ardanlabs/dpos/foundation/validate"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_FromChain(t *testing.T) {
	var fe validate.FieldErrors
	fe.Add("height", "height must be zero")

	type table struct {
		name   string
		err    error
		status int
	}

	tt := []table{
		{name: "decode", err: &codec.DecodeError{Schema: "block", Err: errors.New("bad")}, status: http.StatusBadRequest},
		{name: "fields", err: fe.Err(), status: http.StatusBadRequest},
		{name: "consensus", err: &state.ConsensusError{Kind: state.ErrInvalidSignature, Height: 4}, status: http.StatusNotAcceptable},
		{name: "notfound", err: fmt.Errorf("block: %w", database.ErrNotFound), status: http.StatusNotFound},
		{name: "finalized", err: fmt.Errorf("blk[3]: %w", state.ErrRemoveFinalized), status: http.StatusConflict},
		{name: "fatal", err: &state.FatalError{Err: state.ErrRemoveGenesis}, status: http.StatusInternalServerError},
		{name: "other", err: errors.New("disk on fire"), status: http.StatusInternalServerError},
	}

	t.Log("Given the need to map chain errors onto responses.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				resp, status := errs.ToResponse(errs.FromChain(tst.err))
				if status != tst.status {
					t.Fatalf("\t%s\tTest %d:\tShould get status %d: got %d", failed, testID, tst.status, status)
				}
				t.Logf("\t%s\tTest %d:\tShould get status %d.", success, testID, tst.status)

				if tst.name == "fields" && resp.Fields["height"] == "" {
					t.Fatalf("\t%s\tTest %d:\tShould report the field errors: %+v", failed, testID, resp)
				}
			}

			t.Run(tst.name, f)
		}
	}
}
