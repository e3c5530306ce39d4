package entity

// AuditEntry is one append-only record of a registration attempt that
// reached the durable-mutation stage. Result is "ok" or a failure code.
type AuditEntry struct {
	ID     string `json:"id" bson:"id"`
	Actor  string `json:"actor" bson:"actor"`
	Action string `json:"action" bson:"action"`
	Target string `json:"target" bson:"target"`
	Result string `json:"result" bson:"result"`
	IP     string `json:"ip" bson:"ip"`
	TS     string `json:"ts" bson:"ts"`
}

const AuditActionRegister = "register"
