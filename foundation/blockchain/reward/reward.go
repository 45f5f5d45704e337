// Package reward implements the milestone based block reward schedule.
// Every calculation is integer only so all nodes agree on the result.
package reward

import (
	"errors"
	"math/big"
)

// Args configures the reward schedule.
type Args struct {
	Distance     uint32
	RewardOffset uint32
	Milestones   []uint64
}

// DefaultArgs returns the schedule used when a chain doesn't configure one.
func DefaultArgs() Args {
	const beddows = 100_000_000

	return Args{
		Distance:     3_000_000,
		RewardOffset: 1_451_520,
		Milestones:   []uint64{500 * beddows, 400 * beddows, 300 * beddows, 200 * beddows, 100 * beddows},
	}
}

// Validate checks the schedule can be used for calculations.
func (a Args) Validate() error {
	if a.Distance == 0 {
		return errors.New("reward distance must be greater than zero")
	}
	if len(a.Milestones) == 0 {
		return errors.New("reward milestones must not be empty")
	}
	return nil
}

// CalculateMilestone returns the index of the milestone in effect at the
// specified height. Once the schedule runs out of milestones the last one
// applies forever.
func CalculateMilestone(height uint32, args Args) int {
	if height < args.RewardOffset {
		return 0
	}

	location := uint64(height-args.RewardOffset) / uint64(args.Distance)
	last := uint64(len(args.Milestones) - 1)

	if location > last {
		return int(last)
	}
	return int(location)
}

// CalculateReward returns the block reward at the specified height. Heights
// below the reward offset earn nothing.
func CalculateReward(height uint32, args Args) uint64 {
	if height < args.RewardOffset {
		return 0
	}

	return args.Milestones[CalculateMilestone(height, args)]
}

// CalculateSupply returns the total reward issued from the offset up to and
// including the specified height.
func CalculateSupply(height uint32, args Args) *big.Int {
	supply := new(big.Int)
	if height < args.RewardOffset {
		return supply
	}

	remaining := uint64(height-args.RewardOffset) + 1
	for i, milestone := range args.Milestones {
		blocks := uint64(args.Distance)
		if i == len(args.Milestones)-1 || remaining < blocks {
			blocks = remaining
		}

		part := new(big.Int).SetUint64(milestone)
		part.Mul(part, new(big.Int).SetUint64(blocks))
		supply.Add(supply, part)

		remaining -= blocks
		if remaining == 0 {
			break
		}
	}

	return supply
}
