// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

// GetExampleActionReport returns a short, well formed report that is rendered
// into the analysis prompt as a one-shot example of the expected output.
func GetExampleActionReport() *ActionReport {
	actions := []*FencingAction{
		{ActionType: "attack", Timestamp: 1.5, Player: PlayerRight, Confidence: 0.95,
			Description: "Right fencer initiates an attack with a lunge"},
		{ActionType: "parry", Timestamp: 1.7, Player: PlayerLeft, Confidence: 0.85,
			Description: "Left fencer executes a parry in quarte"},
		{ActionType: "riposte", Timestamp: 1.9, Player: PlayerLeft, Confidence: 0.9,
			Description: "Left fencer follows with an immediate riposte"},
		{ActionType: "touch", Timestamp: 2.1, Player: PlayerLeft, Confidence: 0.98,
			Description: "Left fencer scores a touch to the torso"},
	}
	return &ActionReport{
		Actions: &actions,
		Summary: "The bout begins with the right fencer initiating an attack, which is parried by the " +
			"left fencer. The left fencer then executes a successful riposte, scoring a touch.",
	}
}
