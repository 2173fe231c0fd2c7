package models

import (
	"encoding/json"
	"fmt"
)

// Recipients is the delivered_to field of a MessageReceipt: a single agent
// id for directed messages, a list of ids for broadcasts.
type Recipients struct {
	one  string
	many []string
	list bool
}

// SingleRecipient returns Recipients for a directed message.
func SingleRecipient(agentID string) Recipients {
	return Recipients{one: agentID}
}

// RecipientList returns Recipients for a broadcast. A nil list encodes as [].
func RecipientList(agentIDs []string) Recipients {
	if agentIDs == nil {
		agentIDs = []string{}
	}
	return Recipients{many: agentIDs, list: true}
}

// IsList reports whether the recipients came from a broadcast.
func (r Recipients) IsList() bool { return r.list }

// IDs returns every recipient id.
func (r Recipients) IDs() []string {
	if r.list {
		out := make([]string, len(r.many))
		copy(out, r.many)
		return out
	}
	return []string{r.one}
}

func (r Recipients) MarshalJSON() ([]byte, error) {
	if r.list {
		return json.Marshal(r.many)
	}
	return json.Marshal(r.one)
}

func (r *Recipients) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*r = SingleRecipient(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("delivered_to must be a string or a list of strings: %w", err)
	}
	*r = RecipientList(many)
	return nil
}
