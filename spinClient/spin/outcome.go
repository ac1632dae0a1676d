package spin

import (
	"encoding/json"
	"math/big"

	"github.com/pushchain/spin-relay/spinClient/chains/evm"
	spinerrors "github.com/pushchain/spin-relay/spinClient/errors"
)

// bonusPrizeTable maps bonus prize indexes to the multipliers the game surface shows.
var bonusPrizeTable = [...]int{10, 20, 40, 60, 80}

const bonusGameID = "BONUS_GAME"

// failedMessage is the neutral text for failures with no more specific reason.
const failedMessage = "transaction failed"

// Outcome is the result delivered to the game surface, in its wire format.
type Outcome struct {
	Res         bool        `json:"res"`
	Win         bool        `json:"win"`
	TotWin      float64     `json:"tot_win"`
	Pattern     [3][5]uint8 `json:"pattern"`
	Freespin    bool        `json:"freespin"`
	Bonus       bool        `json:"bonus"`
	NumFreespin uint8       `json:"num_freespin"`
	Money       float64     `json:"money"`
	BonusPrize  float64     `json:"bonus_prize"`
	PrizeList   string      `json:"prize_list"`
	BonusIDs    []string    `json:"_aBonusId"`
	BonusData   BonusData   `json:"bonusData"`
	Err         string      `json:"err,omitempty"`
}

// BonusData is the bonus game summary.
type BonusData struct {
	PrizeList string  `json:"prize_list"`
	BonusWin  float64 `json:"bonus_win"`
	Money     float64 `json:"money"`
}

// MarshalJSON emits only {res, err} for failures.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if !o.Res {
		return json.Marshal(struct {
			Res bool   `json:"res"`
			Err string `json:"err"`
		}{Res: false, Err: o.Err})
	}
	type wire Outcome
	return json.Marshal(wire(o))
}

// Failed builds a failure outcome.
func Failed(message string) *Outcome {
	return &Outcome{Res: false, Err: message}
}

// NewOutcome maps a confirmed SpinResult and the balance read after it.
func NewOutcome(res *evm.SpinResult, balance *big.Int) *Outcome {
	money := FromUnits(balance).InexactFloat64()
	bonusWin := FromUnits(res.BonusPrize).InexactFloat64()
	prizes := prizeList(res.BonusPrizeIndexes)

	bonusIDs := []string{}
	if res.Bonus {
		bonusIDs = append(bonusIDs, bonusGameID)
	}

	return &Outcome{
		Res:         true,
		Win:         res.Won(),
		TotWin:      FromUnits(res.TotWin).InexactFloat64(),
		Pattern:     res.Pattern,
		Freespin:    res.Freespin,
		Bonus:       res.Bonus,
		NumFreespin: res.NumFreespin,
		Money:       money,
		BonusPrize:  bonusWin,
		PrizeList:   prizes,
		BonusIDs:    bonusIDs,
		BonusData: BonusData{
			PrizeList: prizes,
			BonusWin:  bonusWin,
			Money:     money,
		},
	}
}

// prizeList is the JSON-encoded list of multipliers for the won bonus indexes.
func prizeList(indexes []uint8) string {
	prizes := make([]int, 0, len(indexes))
	for _, i := range indexes {
		if int(i) < len(bonusPrizeTable) {
			prizes = append(prizes, bonusPrizeTable[i])
		} else {
			prizes = append(prizes, 0)
		}
	}
	out, _ := json.Marshal(prizes)
	return string(out)
}

// failureMessage is the player-facing text for err.
func failureMessage(err error) string {
	var spinErr *spinerrors.SpinError
	if !spinerrors.As(err, &spinErr) {
		return spinerrors.ShortMessage(err)
	}

	switch spinErr.Code {
	case spinerrors.ErrCodeConfirmationTimeout:
		return failedMessage
	case spinerrors.ErrCodePaymentUnavailable, spinerrors.ErrCodeSetup:
		return spinErr.Message
	case spinerrors.ErrCodePaymentExhausted:
		if spinErr.Cause != nil {
			return spinErr.Message + ": " + spinerrors.ShortMessage(spinErr)
		}
		return spinErr.Message
	default:
		if msg := spinerrors.ShortMessage(err); msg != "" {
			return msg
		}
		return failedMessage
	}
}
