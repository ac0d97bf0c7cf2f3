package usersync

import "github.com/gymflow/gymflow/internal/users"

// State is an immutable snapshot of the store. Version increases by one on
// every applied action, so an unchanged Version means no dispatch happened.
type State struct {
	Users    []users.User
	Hydrated bool
	Version  uint64
}

// ActionType names a reducer transition.
type ActionType string

const (
	ActionHydrate ActionType = "HYDRATE"
	ActionCreate  ActionType = "CREATE"
	ActionUpdate  ActionType = "UPDATE"
	ActionRemove  ActionType = "REMOVE"
)

// Action is a reducer input. Users is read by HYDRATE, User by CREATE and
// UPDATE, ID by REMOVE.
type Action struct {
	Type  ActionType
	Users []users.User
	User  users.User
	ID    string
}

// Reduce applies action to state without mutating the input snapshot.
func Reduce(state State, action Action) State {
	next := State{Users: state.Users, Hydrated: state.Hydrated, Version: state.Version + 1}
	switch action.Type {
	case ActionHydrate:
		next.Users = action.Users
		if next.Users == nil {
			next.Users = []users.User{}
		}
		next.Hydrated = true
	case ActionCreate:
		list := make([]users.User, 0, len(state.Users)+1)
		list = append(list, action.User)
		next.Users = append(list, state.Users...)
	case ActionUpdate:
		list := make([]users.User, len(state.Users))
		for i, u := range state.Users {
			if u.ID == action.User.ID {
				u = action.User
			}
			list[i] = u
		}
		next.Users = list
	case ActionRemove:
		list := make([]users.User, 0, len(state.Users))
		for _, u := range state.Users {
			if u.ID != action.ID {
				list = append(list, u)
			}
		}
		next.Users = list
	default:
		return state
	}
	return next
}
