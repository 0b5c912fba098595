package cardledger

import (
	"context"
	"fmt"

	"github.com/cardledger/cardledger/internal/apierror"
	"github.com/cardledger/cardledger/model"
)

// resolveCard maps a card number to its account, or to a card-not-found
// rejection (100). Cross-reference rows are immutable, so this is the only
// posting check that may run outside the posting transaction; account-state
// checks happen against the locked row inside it. A non-nil error means the
// lookup itself failed, not that the card is unknown.
func (c *CardLedger) resolveCard(ctx context.Context, cardNumber string) (string, *model.Rejection, error) {
	xref, err := c.datasource.GetCardXref(ctx, cardNumber)
	if err != nil {
		if apierror.CodeOf(err) == apierror.ErrNotFound {
			return "", &model.Rejection{
				Code:    model.ReasonCardNotFound,
				Message: fmt.Sprintf("card %s not found", cardNumber),
			}, nil
		}
		return "", nil, err
	}
	return xref.AccountID, nil, nil
}
