package perception

// DefaultPrompt asks the model for the scene as a single JSON object.
const DefaultPrompt = `Point to no more than 10 items in the image. Each label is a short
identifying name for the object. Points are [y, x] normalised to 0-1000.

Objects of interest:
- robot claw
- lighter attached to the robot claw
- candles
- toy cake or cupcake

If none of these are visible, return "idle" for current_state and next_state
and false for every flag.

You direct a robot claw through these states:
- "idle"
- "pick_up_candle": pick up the candle and place it in the cake
- "light_candle": light the candle
- "retract_arm": move the arm back home

Return exactly this JSON object:
{"current_state": <state>,
 "next_state": <state>,
 "points": [{"point": [y, x], "label": <label>}, ...],
 "claw_has_candle": <bool>,
 "is_flame_lit": <bool>,
 "is_candle_in_cake": <bool>,
 "is_arm_retracted": <bool>,
 "instructions": <short guidance for the claw>}
`
