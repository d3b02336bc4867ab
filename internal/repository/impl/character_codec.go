package impl

import (
	"encoding/json"
	"fmt"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
)

// 背包与进度在两种存储中都以 JSON 文本保存；lib/pq 会把 []byte 当作 bytea，写入时需转成 string

func encodeCharacterBlobs(rec *battle.CharacterRecord) (inventory, progression []byte, err error) {
	items := rec.Inventory
	if items == nil {
		items = []battle.InventoryItem{}
	}
	inventory, err = json.Marshal(items)
	if err != nil {
		return nil, nil, fmt.Errorf("序列化背包失败: %w", err)
	}

	prog := rec.Progression
	if prog.CompletedStages == nil {
		prog.CompletedStages = []string{}
	}
	progression, err = json.Marshal(prog)
	if err != nil {
		return nil, nil, fmt.Errorf("序列化章节进度失败: %w", err)
	}
	return inventory, progression, nil
}

func decodeCharacterBlobs(rec *battle.CharacterRecord, inventory, progression []byte) error {
	if len(inventory) > 0 {
		if err := json.Unmarshal(inventory, &rec.Inventory); err != nil {
			return fmt.Errorf("解析背包失败: %w", err)
		}
	}
	if len(progression) > 0 {
		if err := json.Unmarshal(progression, &rec.Progression); err != nil {
			return fmt.Errorf("解析章节进度失败: %w", err)
		}
	}
	return nil
}
