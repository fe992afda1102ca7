package nodeaction

import "fmt"

func errNodeNotRegistered(nodeID int32) error {
	return fmt.Errorf("node %d is not registered in the catalog", nodeID)
}
