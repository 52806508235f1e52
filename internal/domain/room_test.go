package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoom_Helpers(t *testing.T) {
	req := require.New(t)
	room := Room{ID: "r1", Members: []Member{
		{ConnectionID: "c1", UserID: "x"},
	}}

	req.False(room.Full())
	req.True(room.HasUser("x"))
	req.False(room.HasUser("y"))

	room.Members = append(room.Members, Member{ConnectionID: "c2", UserID: "y"})
	req.True(room.Full())
	req.Equal([]UserID{"x", "y"}, room.UserIDs())
}
