package controller

// Decision — результат авторизации намерения.
type Decision int

const (
	DecisionDenied Decision = iota
	DecisionAdmin
	DecisionOwner
)

// Policy — явная политика авторизации: статический список
// администраторов из конфигурации плюс self-service для владельца пира.
// Консультируется один раз на каждое намерение.
type Policy struct {
	admins map[int64]struct{}
}

func NewPolicy(adminIDs []int64) *Policy {
	p := &Policy{admins: make(map[int64]struct{}, len(adminIDs))}
	for _, id := range adminIDs {
		p.admins[id] = struct{}{}
	}
	return p
}

func (p *Policy) IsAdmin(id int64) bool {
	_, ok := p.admins[id]
	return ok
}

// Authorize определяет, в каком качестве запросивший действует над
// пиром с данным владельцем.
func (p *Policy) Authorize(requestor, ownerID int64) Decision {
	if p.IsAdmin(requestor) {
		return DecisionAdmin
	}
	if requestor == ownerID {
		return DecisionOwner
	}
	return DecisionDenied
}
