package hierarchy

const sampleDocument = `{
    "entity_type": "Task",
    "name": "Assets",
    "description": "",
    "type": null,
    "tasks": [
        {
            "entity_type": "Asset",
            "name": "Hero",
            "code": "HERO",
            "type": {"name": "Character", "code": "CHAR", "target_entity_type": "Asset", "entity_type": "Type"},
            "versions": [],
            "tasks": [
                {
                    "entity_type": "Task",
                    "name": "Model",
                    "type": {"name": "Model", "entity_type": "Type"},
                    "tasks": [],
                    "versions": [
                        {"variant_name": "Main", "version_number": 2, "is_published": true, "created_with": "Maya", "extension": ".ma"},
                        {"variant_name": "Main", "version_number": 1, "is_published": false, "created_with": "Maya", "extension": ".ma"},
                        {"variant_name": "Main@BBox", "version_number": 1, "is_published": true, "created_with": "Maya", "extension": ".ma"}
                    ]
                },
                {
                    "entity_type": "Task",
                    "name": "Rig",
                    "type": null,
                    "tasks": [],
                    "versions": [
                        {"take_name": "Main", "version_number": 5, "is_published": true, "extension": ".ma"}
                    ]
                }
            ]
        },
        {
            "entity_type": "Asset",
            "name": "Sidekick",
            "code": "SIDE",
            "type": {"name": "Character", "code": "CHAR", "target_entity_type": "Asset", "entity_type": "Type"},
            "versions": [],
            "tasks": []
        }
    ],
    "versions": []
}`
